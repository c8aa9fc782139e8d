// Package runtime provides a backend.Backend backed by a remote quantum
// runtime service over HTTP.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/domain"
)

// APIError is a non-2xx answer from the runtime service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("runtime API error: status %d, body: %s", e.StatusCode, e.Body)
}

// CircuitPayload is one circuit in a submission.
type CircuitPayload struct {
	Name     string `json:"name"`
	Program  string `json:"program"`
	Measured []int  `json:"measured"`
}

// SubmitRequest is the body of POST /jobs.
type SubmitRequest struct {
	Backend           string           `json:"backend"`
	Shots             int              `json:"shots"`
	PreserveStructure bool             `json:"preserve_structure"`
	Circuits          []CircuitPayload `json:"circuits"`
}

// JobResponse is returned by POST /jobs and GET /jobs/{id}.
type JobResponse struct {
	ID     string         `json:"id"`
	Status backend.Status `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// ResultsResponse is returned by GET /jobs/{id}/results.
type ResultsResponse struct {
	Results []domain.Histogram `json:"results"`
}

// Client talks to the runtime service for one named backend.
type Client struct {
	baseURL    string
	token      string
	backend    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a runtime client for the named backend.
func NewClient(baseURL, token, backendName string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		backend: backendName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("component", "runtime").Str("backend", backendName).Logger(),
	}
}

func (c *Client) Name() string { return c.backend }

// Properties fetches the backend calibration snapshot.
func (c *Client) Properties(ctx context.Context) (*backend.Properties, error) {
	var props backend.Properties
	if err := c.do(ctx, http.MethodGet, "/backends/"+url.PathEscape(c.backend)+"/properties", nil, &props); err != nil {
		return nil, err
	}
	if props.Name == "" {
		props.Name = c.backend
	}
	return &props, nil
}

// Submit sends every circuit program as one job.
func (c *Client) Submit(ctx context.Context, circuits []domain.Circuit, shots int, opts backend.SubmitOptions) (backend.Job, error) {
	req := SubmitRequest{
		Backend:           c.backend,
		Shots:             shots,
		PreserveStructure: opts.PreserveStructure,
		Circuits:          make([]CircuitPayload, len(circuits)),
	}
	for i, circ := range circuits {
		req.Circuits[i] = CircuitPayload{Name: circ.Name(), Program: circ.Program(), Measured: circ.MeasuredQubits()}
	}

	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("runtime returned no job id")
	}

	c.log.Info().
		Str("job_id", resp.ID).
		Int("circuits", len(circuits)).
		Int("shots", shots).
		Msg("Job submitted")
	return &job{id: resp.ID, client: c}, nil
}

// Job re-attaches to an existing job after checking that it exists. A failed
// job still re-attaches; its failure surfaces when it is awaited.
func (c *Client) Job(ctx context.Context, id string) (backend.Job, error) {
	j := &job{id: id, client: c}
	if _, err := j.Status(ctx); err != nil && !errors.Is(err, backend.ErrJobFailed) {
		return nil, err
	}
	return j, nil
}

// do performs one request. A nil body sends no payload; a nil out discards the response.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type job struct {
	id     string
	client *Client
}

func (j *job) ID() string { return j.id }

func (j *job) Status(ctx context.Context) (backend.Status, error) {
	var resp JobResponse
	if err := j.client.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(j.id), nil, &resp); err != nil {
		return "", err
	}
	if resp.Status == backend.StatusFailed && resp.Error != "" {
		j.client.log.Error().Str("job_id", j.id).Str("reason", resp.Error).Msg("Job failed")
		return resp.Status, &backend.JobError{JobID: j.id, Reason: resp.Error}
	}
	return resp.Status, nil
}

func (j *job) Result(ctx context.Context) ([]domain.Histogram, error) {
	var resp ResultsResponse
	if err := j.client.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(j.id)+"/results", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}
