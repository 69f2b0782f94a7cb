package candidate

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxvalues "github.com/kone-m/karite/pkg/context"
	"github.com/kone-m/karite/pkg/graph"
	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/review"
	"github.com/kone-m/karite/pkg/tracing"
)

var validate = validator.New()

// Register registers candidate review routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/stats", Stats)
	g.GET("/clusters/:recordId", Cluster)
	g.GET("/:id", Get)
	g.POST("/:id/decision", Decide)
}

// List returns candidates filtered by type, status and confidence
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.List")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	filter := review.ListFilter{
		ClientType: models.ClientType(c.QueryParam("client_type")),
		Status:     c.QueryParam("status"),
		Confidence: models.ConfidenceBucket(c.QueryParam("confidence")),
		Limit:      limit,
		Offset:     offset,
	}
	if filter.ClientType != "" && !filter.ClientType.Valid() {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown client type %q", filter.ClientType)
	}

	ctx, service, err := ectoinject.GetContext[*review.QueryService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get query service")
	}

	list, err := service.List(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, list)
}

// Stats returns candidate counts by status
func Stats(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Stats")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*review.QueryService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get query service")
	}

	stats, err := service.Stats(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}

// Get returns one candidate with both records and field comparisons
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Get")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*review.QueryService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get query service")
	}

	detail, err := service.Detail(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, review.ErrCandidateNotFound) {
			return httperror.NewHTTPError(http.StatusNotFound, "candidate not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, detail)
}

// DecisionRequest is the reviewer decision payload
type DecisionRequest struct {
	DecisionType      string  `json:"decision_type" validate:"required,oneof=confirm reject merge"`
	Comments          string  `json:"comments"`
	SurvivingRecordID *string `json:"surviving_record_id"`
}

// Decide applies a terminal decision to a pending candidate. The
// reviewer identity comes from the X-Reviewer-ID header.
func Decide(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Decide")
	defer span.End()

	reviewerID := ctxvalues.GetReviewerID(ctx)
	if reviewerID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "reviewer id is required")
	}

	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %v", err)
	}

	ctx, manager, err := ectoinject.GetContext[*review.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lifecycle manager")
	}

	decided, err := manager.Decide(ctx, review.DecisionRequest{
		CandidateID:       c.Param("id"),
		ReviewerID:        reviewerID,
		DecisionType:      req.DecisionType,
		Comments:          req.Comments,
		SurvivingRecordID: req.SurvivingRecordID,
	})
	if err != nil {
		switch {
		case errors.Is(err, review.ErrCandidateNotFound):
			return httperror.NewHTTPError(http.StatusNotFound, "candidate not found")
		case errors.Is(err, review.ErrAlreadyDecided):
			return httperror.NewHTTPError(http.StatusConflict, "candidate already decided")
		case errors.Is(err, review.ErrInvalidDecision):
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "%v", err)
		case errors.Is(err, review.ErrMergeFailed):
			return httperror.NewHTTPError(http.StatusBadGateway, "registry merge failed, candidate remains pending")
		default:
			return err
		}
	}

	return c.JSON(http.StatusOK, decided)
}

// Cluster returns every record transitively linked to a record
// through confirmed duplicates
func Cluster(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Cluster")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*graph.DuplicateService](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "duplicate graph is not enabled")
	}

	ids, err := service.Cluster(ctx, c.Param("recordId"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to query duplicate cluster")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"record_id":  c.Param("recordId"),
		"duplicates": ids,
	})
}
