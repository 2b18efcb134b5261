package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Normalized job statuses. Each provider client maps its vendor statuses
// onto these; everything downstream only sees the normalized form.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Default polling parameters for provider jobs. Generation runs are slow,
// so the interval is coarse and the timeout generous.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 10 * time.Minute
)

// Job is a provider-side generation job in normalized form.
type Job struct {
	ID        string
	Status    string
	OutputURL string
	Error     string
}

// IsTerminal reports whether the job reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// ImageRequest describes a single image generation.
type ImageRequest struct {
	Prompt         string
	Model          string
	ReferenceImage string // URL or data URL; empty for pure text-to-image
}

// VideoRequest describes a single video clip generation.
type VideoRequest struct {
	Prompt         string
	Model          string
	ReferenceImage string // seed frame for image-to-video chaining
	DurationSecs   int
}

// Provider is implemented by each external generation vendor client.
type Provider interface {
	Name() string
	StartImage(ctx context.Context, req ImageRequest) (string, error)
	StartVideo(ctx context.Context, req VideoRequest) (string, error)
	GetJob(ctx context.Context, jobID string) (*Job, error)
}

// Registry routes a model name to the provider client that serves it.
// Model names are vendor-prefixed, e.g. "replicate/flux-schnell" or
// "kling-v1.6-standard".
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// ForModel returns the provider serving the given model name.
// Unknown models are rejected so a bad submission fails before any
// credits are charged.
func (r *Registry) ForModel(model string) (Provider, error) {
	switch {
	case strings.HasPrefix(model, "replicate/"):
		if p, ok := r.providers["replicate"]; ok {
			return p, nil
		}
	case strings.HasPrefix(model, "kling"):
		if p, ok := r.providers["kling"]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no provider configured for model %q", model)
}

// WaitForCompletion polls the provider until the job reaches a terminal
// state, the timeout elapses, or the context is cancelled.
//
// Polling strategy: fixed interval, overall deadline, and a small budget of
// consecutive poll errors so a flaky network doesn't kill a long-running job.
// A timeout is returned as an error; the caller treats it as terminal failure.
func WaitForCompletion(ctx context.Context, p Provider, jobID string, pollInterval, timeout time.Duration) (*Job, error) {
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout == 0 {
		timeout = DefaultPollTimeout
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if pollCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("job %s did not complete within %v", jobID, timeout)
			}
			return nil, fmt.Errorf("job %s polling cancelled: %w", jobID, pollCtx.Err())
		case <-ticker.C:
		}

		job, err := p.GetJob(pollCtx, jobID)
		if err != nil {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				return nil, fmt.Errorf("job %s polling failed after %d consecutive errors: %w", jobID, consecutiveErrors, err)
			}
			continue
		}
		consecutiveErrors = 0

		if job.IsTerminal() {
			return job, nil
		}
	}
}
