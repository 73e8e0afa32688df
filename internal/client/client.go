// Package client is a small HTTP client for the prediction API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"cipher-scan/internal/storage"
)

// Ranked is one entry of a top-k ranking.
type Ranked struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Prediction is a successful /predict or /predict-file response.
type Prediction struct {
	RequestID  string   `json:"request_id,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Algorithm  string   `json:"algorithm"`
	Confidence float64  `json:"confidence"`
	Top        []Ranked `json:"top,omitempty"`
}

// Health is the /health response.
type Health struct {
	Status        string `json:"status"`
	ModelLoaded   bool   `json:"model_loaded"`
	EncoderLoaded bool   `json:"encoder_loaded"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Detail)
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second) // default fallback
	}
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// PredictText classifies text.
func (c *Client) PredictText(ctx context.Context, text string) (Prediction, error) {
	var p Prediction
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		SetResult(&p).
		SetError(apiErr).
		Post(c.base + "/predict")
	if err != nil {
		return Prediction{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return Prediction{}, withStatus(apiErr, resp)
	}
	return p, nil
}

// PredictBytes uploads data as a file named filename.
func (c *Client) PredictBytes(ctx context.Context, filename string, data []byte) (Prediction, error) {
	var p Prediction
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetResult(&p).
		SetError(apiErr).
		Post(c.base + "/predict-file")
	if err != nil {
		return Prediction{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return Prediction{}, withStatus(apiErr, resp)
	}
	return p, nil
}

// PredictFile uploads the file at path.
func (c *Client) PredictFile(ctx context.Context, path string) (Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.PredictBytes(ctx, filepath.Base(path), data)
}

// Health returns the service health. An unhealthy service is not an error;
// check Health.Status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&h).
		SetError(&h).
		Get(c.base + "/health")
	if err != nil {
		return Health{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusServiceUnavailable {
		return Health{}, &APIError{StatusCode: resp.StatusCode(), Detail: resp.String()}
	}
	return h, nil
}

// HistoryQuery selects recorded predictions. Zero fields are omitted, so the
// server defaults apply.
type HistoryQuery struct {
	N     int
	Since time.Time
	Until time.Time
}

// History is the /predictions response, newest first.
type History struct {
	Total       int                        `json:"total"`
	Predictions []storage.PredictionRecord `json:"predictions"`
}

// Predictions reads the running service's prediction history.
func (c *Client) Predictions(ctx context.Context, q HistoryQuery) (History, error) {
	var h History
	apiErr := &APIError{}
	req := c.rest.R().
		SetContext(ctx).
		SetResult(&h).
		SetError(apiErr)
	if q.N > 0 {
		req.SetQueryParam("n", strconv.Itoa(q.N))
	}
	if !q.Since.IsZero() {
		req.SetQueryParam("since", q.Since.Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		req.SetQueryParam("until", q.Until.Format(time.RFC3339))
	}

	resp, err := req.Get(c.base + "/predictions")
	if err != nil {
		return History{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return History{}, withStatus(apiErr, resp)
	}
	return h, nil
}

// Prediction reads one recorded prediction by request id.
func (c *Client) Prediction(ctx context.Context, id string) (storage.PredictionRecord, error) {
	var rec storage.PredictionRecord
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&rec).
		SetError(apiErr).
		Get(c.base + "/predictions/{id}")
	if err != nil {
		return storage.PredictionRecord{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return storage.PredictionRecord{}, withStatus(apiErr, resp)
	}
	return rec, nil
}

func withStatus(e *APIError, resp *resty.Response) error {
	e.StatusCode = resp.StatusCode()
	if e.Detail == "" {
		e.Detail = resp.String()
	}
	return e
}
