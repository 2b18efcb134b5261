package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func klingTaskBody(taskID, status, videoURL, imageURL string) map[string]interface{} {
	result := map[string]interface{}{}
	if videoURL != "" {
		result["videos"] = []map[string]string{{"url": videoURL}}
	}
	if imageURL != "" {
		result["images"] = []map[string]string{{"url": imageURL}}
	}
	return map[string]interface{}{
		"code":    0,
		"message": "SUCCEED",
		"data": map[string]interface{}{
			"task_id":     taskID,
			"task_status": status,
			"task_result": result,
		},
	}
}

func TestKlingClient_StartImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/v1/images/generations", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "kling-v1.6-standard", payload["model_name"])
		assert.Equal(t, "a red bicycle", payload["prompt"])

		json.NewEncoder(w).Encode(klingTaskBody("task-42", "submitted", "", ""))
	}))
	defer srv.Close()

	client := NewKlingClient(srv.URL, "t", 5*time.Second)

	jobID, err := client.StartImage(context.Background(), ImageRequest{
		Prompt: "a red bicycle",
		Model:  "kling-v1.6-standard",
	})
	require.NoError(t, err)
	assert.Equal(t, "image:task-42", jobID)
}

func TestKlingClient_StartVideo_ReferenceSwitchesEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/videos/image2video", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "data:image/png;base64,AAAA", payload["image"])

		json.NewEncoder(w).Encode(klingTaskBody("task-7", "submitted", "", ""))
	}))
	defer srv.Close()

	client := NewKlingClient(srv.URL, "t", 5*time.Second)

	jobID, err := client.StartVideo(context.Background(), VideoRequest{
		Prompt:         "the fox keeps running",
		Model:          "kling-v1.6-pro",
		ReferenceImage: "data:image/png;base64,AAAA",
	})
	require.NoError(t, err)
	assert.Equal(t, "image2video:task-7", jobID)
}

// Image tasks must be polled on the images endpoint. Polling the video
// endpoint for an image task ID returns a vendor error body instead of a
// task status.
func TestKlingClient_GetJob_ImageTaskPollsImagesEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET", r.Method)
		require.Equal(t, "/v1/images/generations/task-42", r.URL.Path)

		json.NewEncoder(w).Encode(klingTaskBody("task-42", "succeed", "", "https://cdn.example.com/out.png"))
	}))
	defer srv.Close()

	client := NewKlingClient(srv.URL, "t", 5*time.Second)

	job, err := client.GetJob(context.Background(), "image:task-42")
	require.NoError(t, err)
	assert.Equal(t, JobStatusSucceeded, job.Status)
	assert.Equal(t, "https://cdn.example.com/out.png", job.OutputURL)
}

func TestKlingClient_GetJob_BareIDPollsText2Video(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/videos/text2video/task-9", r.URL.Path)

		json.NewEncoder(w).Encode(klingTaskBody("task-9", "processing", "", ""))
	}))
	defer srv.Close()

	client := NewKlingClient(srv.URL, "t", 5*time.Second)

	job, err := client.GetJob(context.Background(), "task-9")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, job.Status)
}

// A non-zero vendor code carries no task status at all. Treating it as the
// zero-value status would poll forever, so it must come back terminal.
func TestKlingClient_GetJob_VendorErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    1001,
			"message": "task not found",
		})
	}))
	defer srv.Close()

	client := NewKlingClient(srv.URL, "t", 5*time.Second)

	job, err := client.GetJob(context.Background(), "image:task-gone")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "task not found")
}

func TestKlingClient_SubmitRejectsNonZeroCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    1102,
			"message": "account balance not enough",
		})
	}))
	defer srv.Close()

	client := NewKlingClient(srv.URL, "t", 5*time.Second)

	_, err := client.StartImage(context.Background(), ImageRequest{Prompt: "x", Model: "kling-v1.6-standard"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1102")
}
