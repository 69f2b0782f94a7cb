package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/tracing"
)

// MaxResponseSize caps registry response bodies (10MB)
const MaxResponseSize = 10 * 1024 * 1024

var validate = validator.New()

// recordPayload is the registry wire shape for one client record
type recordPayload struct {
	ID         string            `json:"id" validate:"required"`
	ClientType string            `json:"client_type" validate:"required,oneof=individual corporate"`
	AgencyCode string            `json:"agency_code"`
	Fields     map[string]string `json:"fields"`
}

type recordPage struct {
	Records []json.RawMessage `json:"records"`
	Total   int               `json:"total"`
}

// Config holds registry client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int
}

// Client is the HTTP implementation of Source and MergeExecutor
type Client struct {
	baseURL  string
	pageSize int
	client   *http.Client
	logger   ectologger.Logger
}

// NewClient creates a new registry client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = 200
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		pageSize: pageSize,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}
}

// FetchRecords pages through the registry until limit records are
// collected or the registry runs out. Records that fail validation are
// skipped and counted, never fatal. If the registry becomes
// unreachable mid-fetch the records collected so far are returned
// alongside ErrUnavailable.
func (c *Client) FetchRecords(ctx context.Context, clientType models.ClientType, limit int) (*FetchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Client.FetchRecords")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"client_type": clientType,
		"limit":       limit,
	})

	result := &FetchResult{}
	page := 1

	for len(result.Records) < limit {
		payload, err := c.fetchPage(ctx, clientType, page)
		if err != nil {
			log.WithError(err).Error("registry fetch failed, returning partial records")
			return result, fmt.Errorf("fetching page %d: %w", page, err)
		}
		if len(payload.Records) == 0 {
			break
		}

		for _, raw := range payload.Records {
			if len(result.Records) >= limit {
				break
			}
			record, err := decodeRecord(raw)
			if err != nil {
				result.Skipped++
				log.WithError(err).Debug("skipping undecodable record")
				continue
			}
			result.Records = append(result.Records, record)
		}

		if len(payload.Records) < c.pageSize {
			break
		}
		page++
	}

	log.WithFields(map[string]any{
		"fetched": len(result.Records),
		"skipped": result.Skipped,
	}).Debug("fetched registry records")

	return result, nil
}

// GetRecord resolves one record by id
func (c *Client) GetRecord(ctx context.Context, id string) (*models.ClientRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Client.GetRecord")
	defer span.End()

	body, status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/clients/%s", c.baseURL, url.PathEscape(id)), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	case status >= 500:
		return nil, fmt.Errorf("%w: registry returned %d", ErrUnavailable, status)
	case status != http.StatusOK:
		return nil, fmt.Errorf("registry returned %d for record %s", status, id)
	}

	return decodeRecord(body)
}

// ExecuteMerge asks the registry to merge the non-surviving record
// into the surviving one
func (c *Client) ExecuteMerge(ctx context.Context, survivingRecordID, mergedRecordID string) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Client.ExecuteMerge")
	defer span.End()

	reqBody, err := json.Marshal(map[string]string{
		"surviving_record_id": survivingRecordID,
		"merged_record_id":    mergedRecordID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal merge request: %w", err)
	}

	body, status, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/clients/merge", reqBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if status < 200 || status >= 300 {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"surviving_record_id": survivingRecordID,
			"merged_record_id":    mergedRecordID,
			"status":              status,
		}).Error("registry merge call failed")
		return fmt.Errorf("%w: status %d: %s", ErrMergeRejected, status, string(body))
	}

	return nil
}

func (c *Client) fetchPage(ctx context.Context, clientType models.ClientType, page int) (*recordPage, error) {
	params := url.Values{}
	params.Set("client_type", string(clientType))
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(c.pageSize))

	body, status, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/v1/clients?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status >= 500 {
		return nil, fmt.Errorf("%w: registry returned %d", ErrUnavailable, status)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("registry returned %d", status)
	}

	var payload recordPage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse registry page: %w", err)
	}
	return &payload, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

func decodeRecord(raw []byte) (*models.ClientRecord, error) {
	var payload recordPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}

	return &models.ClientRecord{
		ID:         payload.ID,
		ClientType: models.ClientType(payload.ClientType),
		AgencyCode: payload.AgencyCode,
		Fields:     payload.Fields,
	}, nil
}
