package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kone-m/karite/pkg/context"
)

const (
	// HeaderReviewerID is the header key for the reviewing user's ID
	HeaderReviewerID = "X-Reviewer-ID"
	// HeaderAgencyCode is the header key for the caller's agency code
	HeaderAgencyCode = "X-Agency-Code"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			reviewerID := req.Header.Get(HeaderReviewerID)
			agencyCode := req.Header.Get(HeaderAgencyCode)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetReviewerID(ctx, reviewerID)
			ctx = context.SetAgencyCode(ctx, agencyCode)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
