package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplicateClient_StartImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/v1/predictions", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "black-forest-labs/flux-schnell", payload["model"])

		input := payload["input"].(map[string]interface{})
		assert.Equal(t, "a red bicycle", input["prompt"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pred-123",
			"status": "starting",
		})
	}))
	defer srv.Close()

	client := NewReplicateClient(srv.URL, "test-token", 5*time.Second)

	jobID, err := client.StartImage(context.Background(), ImageRequest{
		Prompt: "a red bicycle",
		Model:  "replicate/black-forest-labs/flux-schnell",
	})
	require.NoError(t, err)
	assert.Equal(t, "pred-123", jobID)
}

func TestReplicateClient_GetJob_StatusMapping(t *testing.T) {
	cases := []struct {
		vendor string
		want   string
	}{
		{"starting", JobStatusQueued},
		{"processing", JobStatusRunning},
		{"succeeded", JobStatusSucceeded},
		{"failed", JobStatusFailed},
		{"canceled", JobStatusFailed},
	}

	for _, tc := range cases {
		t.Run(tc.vendor, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"id":     "pred-1",
					"status": tc.vendor,
					"output": []string{"https://cdn.example.com/out.png"},
				})
			}))
			defer srv.Close()

			client := NewReplicateClient(srv.URL, "t", 5*time.Second)
			job, err := client.GetJob(context.Background(), "pred-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, job.Status)
			if tc.want == JobStatusSucceeded {
				assert.Equal(t, "https://cdn.example.com/out.png", job.OutputURL)
			}
		})
	}
}

func TestReplicateClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "pred-9", "status": "processing"})
	}))
	defer srv.Close()

	client := NewReplicateClient(srv.URL, "t", 5*time.Second)
	job, err := client.GetJob(context.Background(), "pred-9")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestReplicateClient_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewReplicateClient(srv.URL, "t", 5*time.Second)
	_, err := client.GetJob(context.Background(), "pred-9")
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFirstOutputURL(t *testing.T) {
	assert.Equal(t, "https://a/x.png", firstOutputURL(json.RawMessage(`"https://a/x.png"`)))
	assert.Equal(t, "https://a/1.png", firstOutputURL(json.RawMessage(`["https://a/1.png","https://a/2.png"]`)))
	assert.Equal(t, "", firstOutputURL(nil))
	assert.Equal(t, "", firstOutputURL(json.RawMessage(`{"weird":true}`)))
}
