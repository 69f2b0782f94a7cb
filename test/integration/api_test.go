package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcontext "github.com/kone-m/karite/pkg/context"
	"github.com/kone-m/karite/pkg/middleware"
	"github.com/kone-m/karite/pkg/models"
)

// TestAPIHelpers contains helper functions for API testing
type TestAPIHelpers struct {
	t          *testing.T
	e          *echo.Echo
	reviewerID string
}

func NewTestAPIHelpers(t *testing.T) *TestAPIHelpers {
	e := echo.New()
	e.Use(middleware.Context())

	return &TestAPIHelpers{
		t:          t,
		e:          e,
		reviewerID: "test-reviewer",
	}
}

func (h *TestAPIHelpers) MakeRequest(method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderReviewerID, h.reviewerID)

	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func TestContextMiddleware_PropagatesReviewerHeaders(t *testing.T) {
	h := NewTestAPIHelpers(t)

	var gotReviewer, gotAgency, gotRequestID string
	h.e.POST("/echo", func(c echo.Context) error {
		ctx := c.Request().Context()
		gotReviewer = appcontext.GetReviewerID(ctx)
		gotAgency = appcontext.GetAgencyCode(ctx)
		gotRequestID = appcontext.GetRequestID(ctx)
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	req.Header.Set(middleware.HeaderReviewerID, "agent-007")
	req.Header.Set(middleware.HeaderAgencyCode, "OUA-01")
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "agent-007", gotReviewer)
	assert.Equal(t, "OUA-01", gotAgency)
	assert.NotEmpty(t, gotRequestID, "a request id should be generated when the header is absent")
}

func TestDetectionRunRequest_Validation(t *testing.T) {
	validate := validator.New()

	type runRequest struct {
		ClientType string `json:"client_type" validate:"required,oneof=individual corporate"`
		BatchSize  int    `json:"batch_size"`
		MinScore   int    `json:"min_score"`
	}

	t.Run("ValidRequest", func(t *testing.T) {
		req := runRequest{ClientType: "individual", BatchSize: 500, MinScore: 75}
		assert.NoError(t, validate.Struct(req))
	})

	t.Run("MissingClientType", func(t *testing.T) {
		assert.Error(t, validate.Struct(runRequest{}))
	})

	t.Run("UnknownClientType", func(t *testing.T) {
		assert.Error(t, validate.Struct(runRequest{ClientType: "partnership"}))
	})
}

func TestDecisionRequest_Validation(t *testing.T) {
	validate := validator.New()

	type decisionRequest struct {
		DecisionType      string  `json:"decision_type" validate:"required,oneof=confirm reject merge"`
		Comments          string  `json:"comments"`
		SurvivingRecordID *string `json:"surviving_record_id"`
	}

	t.Run("ConfirmIsValid", func(t *testing.T) {
		assert.NoError(t, validate.Struct(decisionRequest{DecisionType: "confirm"}))
	})

	t.Run("UnknownDecisionType", func(t *testing.T) {
		assert.Error(t, validate.Struct(decisionRequest{DecisionType: "approve"}))
	})

	t.Run("MergePayloadRoundTrip", func(t *testing.T) {
		surviving := "rec-2"
		req := decisionRequest{DecisionType: "merge", SurvivingRecordID: &surviving}

		data, err := json.Marshal(req)
		require.NoError(t, err)

		var parsed map[string]any
		require.NoError(t, json.Unmarshal(data, &parsed))
		assert.Equal(t, "merge", parsed["decision_type"])
		assert.Equal(t, "rec-2", parsed["surviving_record_id"])
	})
}

func TestFieldWeightSpec_OverridesFromJSON(t *testing.T) {
	raw := `{
		"individual": {
			"nom": {"weight": 3, "match_threshold": 90},
			"telephone": {"weight": 1, "match_threshold": 85}
		}
	}`

	spec, err := models.ParseFieldWeightSpec(raw)
	require.NoError(t, err)

	weights := spec.ForType("individual")
	require.Contains(t, weights, "nom")
	assert.Equal(t, float64(3), weights["nom"].Weight)
	assert.Equal(t, 90, weights["nom"].MatchThreshold)
}

func TestCandidateResponse_Shape(t *testing.T) {
	candidate := models.DuplicateCandidate{
		ID:           "cand-1",
		ClientType:   "individual",
		RecordID1:    "rec-1",
		RecordID2:    "rec-2",
		OverallScore: 94,
		Status:       models.CandidateStatusPending,
	}

	data, err := json.Marshal(candidate)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "rec-1", parsed["record_id_1"])
	assert.Equal(t, "rec-2", parsed["record_id_2"])
	assert.Equal(t, float64(94), parsed["overall_score"])
	assert.Equal(t, "pending", parsed["status"])
}
