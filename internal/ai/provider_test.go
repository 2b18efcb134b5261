package ai

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts a sequence of poll results.
type fakeProvider struct {
	name    string
	polls   []Job
	pollIdx int32
	pollErr error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) StartImage(ctx context.Context, req ImageRequest) (string, error) {
	return "job-1", nil
}

func (f *fakeProvider) StartVideo(ctx context.Context, req VideoRequest) (string, error) {
	return "job-1", nil
}

func (f *fakeProvider) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	idx := atomic.AddInt32(&f.pollIdx, 1) - 1
	if int(idx) >= len(f.polls) {
		idx = int32(len(f.polls) - 1)
	}
	job := f.polls[idx]
	return &job, nil
}

func TestRegistry_ForModel(t *testing.T) {
	replicate := &fakeProvider{name: "replicate"}
	kling := &fakeProvider{name: "kling"}
	reg := NewRegistry(replicate, kling)

	p, err := reg.ForModel("replicate/black-forest-labs/flux-schnell")
	require.NoError(t, err)
	assert.Equal(t, "replicate", p.Name())

	p, err = reg.ForModel("kling-v1.6-standard")
	require.NoError(t, err)
	assert.Equal(t, "kling", p.Name())

	_, err = reg.ForModel("dall-e-3")
	assert.Error(t, err)
}

func TestRegistry_ForModel_ProviderNotConfigured(t *testing.T) {
	reg := NewRegistry(&fakeProvider{name: "replicate"})
	_, err := reg.ForModel("kling-v1.6-standard")
	assert.Error(t, err)
}

func TestWaitForCompletion_Succeeds(t *testing.T) {
	p := &fakeProvider{
		name: "replicate",
		polls: []Job{
			{ID: "job-1", Status: JobStatusQueued},
			{ID: "job-1", Status: JobStatusRunning},
			{ID: "job-1", Status: JobStatusSucceeded, OutputURL: "https://cdn/x.png"},
		},
	}

	job, err := WaitForCompletion(context.Background(), p, "job-1", 5*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, JobStatusSucceeded, job.Status)
	assert.Equal(t, "https://cdn/x.png", job.OutputURL)
}

func TestWaitForCompletion_TerminalFailure(t *testing.T) {
	p := &fakeProvider{
		name:  "replicate",
		polls: []Job{{ID: "job-1", Status: JobStatusFailed, Error: "NSFW content detected"}},
	}

	job, err := WaitForCompletion(context.Background(), p, "job-1", 5*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "NSFW content detected", job.Error)
}

func TestWaitForCompletion_Timeout(t *testing.T) {
	p := &fakeProvider{
		name:  "replicate",
		polls: []Job{{ID: "job-1", Status: JobStatusRunning}},
	}

	_, err := WaitForCompletion(context.Background(), p, "job-1", 5*time.Millisecond, 30*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not complete")
}

func TestWaitForCompletion_GivesUpAfterConsecutiveErrors(t *testing.T) {
	p := &fakeProvider{
		name:    "replicate",
		pollErr: fmt.Errorf("connection refused"),
	}

	_, err := WaitForCompletion(context.Background(), p, "job-1", time.Millisecond, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consecutive errors")
}

func TestWaitForCompletion_ContextCancelled(t *testing.T) {
	p := &fakeProvider{
		name:  "replicate",
		polls: []Job{{ID: "job-1", Status: JobStatusRunning}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForCompletion(ctx, p, "job-1", time.Millisecond, time.Second)
	assert.Error(t, err)
}
