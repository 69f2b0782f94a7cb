package detection

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/kone-m/karite/internal/repositories/detectionrun"
	"github.com/kone-m/karite/pkg/detection"
	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/registry"
	"github.com/kone-m/karite/pkg/tracing"
)

var validate = validator.New()

// Register registers detection run routes
func Register(g *echo.Group) {
	g.POST("/runs", Run)
	g.GET("/runs", ListRuns)
	g.GET("/runs/:id", GetRun)
}

// RunRequest starts a detection run
type RunRequest struct {
	ClientType string `json:"client_type" validate:"required,oneof=individual corporate"`
	BatchSize  int    `json:"batch_size" validate:"omitempty,min=1"`
	MinScore   int    `json:"min_score" validate:"omitempty,min=1,max=100"`
}

// Run starts a synchronous detection run and returns its counts
func Run(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "detection_handler.Run")
	defer span.End()

	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %v", err)
	}

	ctx, engine, err := ectoinject.GetContext[*detection.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get detection engine")
	}

	run, err := engine.Run(ctx, models.ClientType(req.ClientType), detection.Options{
		BatchSize: req.BatchSize,
		MinScore:  req.MinScore,
	})
	if err != nil {
		// partial counts are still worth returning to the caller
		if errors.Is(err, registry.ErrUnavailable) && run != nil {
			return c.JSON(http.StatusOK, run)
		}
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "detection run failed: %v", err)
	}

	return c.JSON(http.StatusOK, run)
}

// ListRuns returns recent detection runs
func ListRuns(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "detection_handler.ListRuns")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*detectionrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	runs, err := repo.List(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"items": runs})
}

// GetRun returns one detection run by id
func GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "detection_handler.GetRun")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*detectionrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	run, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if run == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "detection run not found")
	}

	return c.JSON(http.StatusOK, run)
}
