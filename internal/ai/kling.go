package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// KlingClient talks to the Kling video generation API. It reuses the same
// HTTP plumbing as the Replicate client; only the endpoints and the status
// vocabulary differ.
type KlingClient struct {
	rest *ReplicateClient // shared request/retry plumbing
}

// NewKlingClient creates a new Kling API client.
func NewKlingClient(baseURL, token string, timeout time.Duration) *KlingClient {
	if baseURL == "" {
		baseURL = "https://api.klingai.com"
	}
	return &KlingClient{
		rest: &ReplicateClient{
			baseURL:    strings.TrimRight(baseURL, "/"),
			token:      token,
			httpClient: newHTTPClient(timeout),
			retryCount: 3,
		},
	}
}

func (c *KlingClient) Name() string { return "kling" }

type klingTaskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		TaskMsg    string `json:"task_status_msg"`
		TaskResult struct {
			Videos []struct {
				URL string `json:"url"`
			} `json:"videos"`
			Images []struct {
				URL string `json:"url"`
			} `json:"images"`
		} `json:"task_result"`
	} `json:"data"`
}

// Task kinds, recorded into the job ID at submit time. Each kind is
// polled on the endpoint family it was created on.
const (
	klingKindImage       = "image"
	klingKindText2Video  = "text2video"
	klingKindImage2Video = "image2video"
)

// StartImage submits an image generation task.
func (c *KlingClient) StartImage(ctx context.Context, req ImageRequest) (string, error) {
	payload := map[string]interface{}{
		"model_name": req.Model,
		"prompt":     req.Prompt,
	}
	if req.ReferenceImage != "" {
		payload["image"] = req.ReferenceImage
	}
	return c.submit(ctx, klingKindImage, payload)
}

// StartVideo submits a video generation task. A reference image switches the
// task to image-to-video, which is what scene chaining needs.
func (c *KlingClient) StartVideo(ctx context.Context, req VideoRequest) (string, error) {
	kind := klingKindText2Video
	payload := map[string]interface{}{
		"model_name": req.Model,
		"prompt":     req.Prompt,
	}
	if req.ReferenceImage != "" {
		kind = klingKindImage2Video
		payload["image"] = req.ReferenceImage
	}
	if req.DurationSecs > 0 {
		payload["duration"] = fmt.Sprintf("%d", req.DurationSecs)
	}
	return c.submit(ctx, kind, payload)
}

// klingPath returns the endpoint family a task kind lives on. Submissions
// POST to it, polls GET from it with the task ID appended.
func klingPath(kind string) (string, error) {
	switch kind {
	case klingKindImage:
		return "/v1/images/generations", nil
	case klingKindText2Video:
		return "/v1/videos/text2video", nil
	case klingKindImage2Video:
		return "/v1/videos/image2video", nil
	}
	return "", fmt.Errorf("unknown kling task kind %q", kind)
}

// submit POSTs the payload and returns a job ID of the form "kind:task_id",
// so GetJob can poll the matching endpoint family later.
func (c *KlingClient) submit(ctx context.Context, kind string, payload map[string]interface{}) (string, error) {
	path, err := klingPath(kind)
	if err != nil {
		return "", err
	}

	var resp klingTaskResponse
	if err := c.rest.makeRequest(ctx, "POST", c.rest.baseURL+path, payload, &resp); err != nil {
		return "", fmt.Errorf("task submission failed: %w", err)
	}
	if resp.Code != 0 {
		return "", fmt.Errorf("task submission rejected: code=%d message=%s", resp.Code, resp.Message)
	}
	if resp.Data.TaskID == "" {
		return "", fmt.Errorf("task submission returned no task_id")
	}
	return kind + ":" + resp.Data.TaskID, nil
}

// GetJob fetches a task and normalizes it. The kind prefix baked into the
// job ID at submit time selects the endpoint family, since image and video
// tasks are looked up on different paths.
func (c *KlingClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	kind, taskID := klingKindText2Video, jobID
	if i := strings.IndexByte(jobID, ':'); i >= 0 {
		kind, taskID = jobID[:i], jobID[i+1:]
	}
	path, err := klingPath(kind)
	if err != nil {
		return nil, err
	}

	var resp klingTaskResponse
	if err := c.rest.makeRequest(ctx, "GET", c.rest.baseURL+path+"/"+taskID, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to poll task status: %w", err)
	}

	// A non-zero code is a vendor-level rejection (expired or unknown task,
	// auth failure). There is no task status to wait on, so surface it as a
	// terminal failure instead of reporting the job as still running.
	if resp.Code != 0 {
		return &Job{
			ID:     jobID,
			Status: JobStatusFailed,
			Error:  fmt.Sprintf("code=%d message=%s", resp.Code, resp.Message),
		}, nil
	}

	job := &Job{ID: jobID}

	switch resp.Data.TaskStatus {
	case "submitted":
		job.Status = JobStatusQueued
	case "processing":
		job.Status = JobStatusRunning
	case "succeed":
		job.Status = JobStatusSucceeded
		if vids := resp.Data.TaskResult.Videos; len(vids) > 0 {
			job.OutputURL = vids[0].URL
		} else if imgs := resp.Data.TaskResult.Images; len(imgs) > 0 {
			job.OutputURL = imgs[0].URL
		}
	case "failed":
		job.Status = JobStatusFailed
		job.Error = resp.Data.TaskMsg
		if job.Error == "" {
			job.Error = "task failed"
		}
	default:
		job.Status = JobStatusRunning
	}

	return job, nil
}
