package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ReplicateClient talks to the Replicate predictions API.
// Models are addressed as "replicate/<owner>/<name>" in our records and
// stripped to "<owner>/<name>" on the wire.
type ReplicateClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retryCount int
}

// NewReplicateClient creates a new Replicate API client.
func NewReplicateClient(baseURL, token string, timeout time.Duration) *ReplicateClient {
	if baseURL == "" {
		baseURL = "https://api.replicate.com"
	}
	return &ReplicateClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retryCount: 3,
	}
}

func (c *ReplicateClient) Name() string { return "replicate" }

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// replicatePrediction mirrors the vendor's prediction resource. Output can be
// a plain string or an array of URLs depending on the model, so it is kept
// raw and normalized after decoding.
type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// StartImage submits a text-to-image (or image-to-image) prediction.
func (c *ReplicateClient) StartImage(ctx context.Context, req ImageRequest) (string, error) {
	input := map[string]interface{}{
		"prompt": req.Prompt,
	}
	if req.ReferenceImage != "" {
		input["image"] = req.ReferenceImage
	}
	return c.createPrediction(ctx, req.Model, input)
}

// StartVideo submits a video prediction. The reference image, when present,
// seeds the first frame (this is what scene chaining relies on).
func (c *ReplicateClient) StartVideo(ctx context.Context, req VideoRequest) (string, error) {
	input := map[string]interface{}{
		"prompt": req.Prompt,
	}
	if req.ReferenceImage != "" {
		input["first_frame_image"] = req.ReferenceImage
	}
	if req.DurationSecs > 0 {
		input["duration"] = req.DurationSecs
	}
	return c.createPrediction(ctx, req.Model, input)
}

func (c *ReplicateClient) createPrediction(ctx context.Context, model string, input map[string]interface{}) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/predictions", c.baseURL)

	payload := map[string]interface{}{
		"model": strings.TrimPrefix(model, "replicate/"),
		"input": input,
	}

	var pred replicatePrediction
	if err := c.makeRequest(ctx, "POST", endpoint, payload, &pred); err != nil {
		return "", fmt.Errorf("prediction submission failed: %w", err)
	}
	if pred.ID == "" {
		return "", fmt.Errorf("prediction submission returned no id")
	}

	return pred.ID, nil
}

// GetJob fetches a prediction and normalizes it.
func (c *ReplicateClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	endpoint := fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, jobID)

	var pred replicatePrediction
	if err := c.makeRequest(ctx, "GET", endpoint, nil, &pred); err != nil {
		return nil, fmt.Errorf("failed to poll prediction status: %w", err)
	}

	job := &Job{ID: pred.ID, Error: pred.Error}

	switch pred.Status {
	case "starting":
		job.Status = JobStatusQueued
	case "processing":
		job.Status = JobStatusRunning
	case "succeeded":
		job.Status = JobStatusSucceeded
		job.OutputURL = firstOutputURL(pred.Output)
	case "failed", "canceled":
		job.Status = JobStatusFailed
		if job.Error == "" {
			job.Error = fmt.Sprintf("prediction %s", pred.Status)
		}
	default:
		job.Status = JobStatusRunning
	}

	return job, nil
}

// firstOutputURL handles both output shapes the API returns:
// a single URL string, or an array of URL strings.
func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}

	return ""
}

// makeRequest performs an HTTP request with flat retries on transient errors.
func (c *ReplicateClient) makeRequest(ctx context.Context, method, url string, payload interface{}, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		lastErr = c.doRequest(ctx, method, url, payload, result)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("request failed after %d attempts: %w", c.retryCount, lastErr)
}

func (c *ReplicateClient) doRequest(ctx context.Context, method, url string, payload interface{}, result interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transientError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transientError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return &transientError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request rejected with status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// transientError marks failures worth retrying (network errors, 5xx).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
