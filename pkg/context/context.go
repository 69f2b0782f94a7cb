package context

import "context"

type ContextKey string

var (
	RequestIDKey  = ContextKey("X-Request-Id")
	MethodKey     = ContextKey("X-Method")
	RouteKey      = ContextKey("X-Route")
	RemoteIPKey   = ContextKey("X-Remote-Ip")
	ReviewerIDKey = ContextKey("X-Reviewer-Id")
	AgencyCodeKey = ContextKey("X-Agency-Code")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	value, ok := ctx.Value(MethodKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	value, ok := ctx.Value(RouteKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	value, ok := ctx.Value(RemoteIPKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetReviewerID stores the identity of the back-office user making the
// request. Decisions require it; read endpoints only log it.
func SetReviewerID(ctx context.Context, reviewerID string) context.Context {
	return context.WithValue(ctx, ReviewerIDKey, reviewerID)
}

func GetReviewerID(ctx context.Context) string {
	value, ok := ctx.Value(ReviewerIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetAgencyCode(ctx context.Context, agencyCode string) context.Context {
	return context.WithValue(ctx, AgencyCodeKey, agencyCode)
}

func GetAgencyCode(ctx context.Context) string {
	value, ok := ctx.Value(AgencyCodeKey).(string)
	if !ok {
		return ""
	}
	return value
}
