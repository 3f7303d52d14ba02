package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock fires immediately so AwaitVideo can burn through its full
// attempt budget in microseconds.
type fakeClock struct {
	fires int
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.fires++
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func newTestKling(t *testing.T, handler http.HandlerFunc) (*KlingService, *fakeClock) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	clock := &fakeClock{}
	svc := NewKlingService("test-key", server.URL).WithClock(clock)
	return svc, clock
}

func TestSubmitReturnsTaskID(t *testing.T) {
	svc, _ := newTestKling(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/videos/image2video", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req klingSubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/scene.png", req.Image)
		assert.Equal(t, klingDefaultDuration, req.Duration)
		assert.NotZero(t, req.Seed)

		json.NewEncoder(w).Encode(klingSubmitResponse{TaskID: "task-123"})
	})

	taskID, err := svc.Submit(context.Background(), VideoJobRequest{
		ImageURL: "https://example.com/scene.png",
		Prompt:   "the robot turns its head",
	})
	require.NoError(t, err)
	assert.Equal(t, "task-123", taskID)
}

func TestPollMapsStatuses(t *testing.T) {
	tests := []struct {
		name      string
		response  klingTaskResponse
		wantState VideoJobState
	}{
		{"processing", klingTaskResponse{Status: "processing"}, VideoJobPolling},
		{"submitted", klingTaskResponse{Status: "submitted"}, VideoJobPolling},
		{"unknown treated as in-progress", klingTaskResponse{Status: "queued"}, VideoJobPolling},
		{"failed", klingTaskResponse{Status: "failed", Error: "content policy"}, VideoJobFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestKling(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.response)
			})

			result, err := svc.Poll(context.Background(), "task-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, result.State)
		})
	}
}

func TestPollNon2xxIsFatal(t *testing.T) {
	svc, _ := newTestKling(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := svc.Poll(context.Background(), "task-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoll))
}

func TestAwaitVideoCompletes(t *testing.T) {
	polls := 0
	svc, clock := newTestKling(t, func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 3 {
			json.NewEncoder(w).Encode(klingTaskResponse{Status: "processing"})
			return
		}
		json.NewEncoder(w).Encode(klingTaskResponse{
			Status: "succeed",
			Videos: []struct {
				URL string `json:"url"`
			}{{URL: "https://cdn.example.com/out.mp4"}},
		})
	})

	url, err := svc.AwaitVideo(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out.mp4", url)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 2, clock.fires, "waits only between polls, not after the last")
}

func TestAwaitVideoUpstreamFailure(t *testing.T) {
	svc, _ := newTestKling(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(klingTaskResponse{Status: "failed", Error: "nsfw input"})
	})

	_, err := svc.AwaitVideo(context.Background(), "task-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVideoFailed))
	assert.Contains(t, err.Error(), "nsfw input")
}

func TestAwaitVideoPollErrorAbandonsJob(t *testing.T) {
	polls := 0
	svc, _ := newTestKling(t, func(w http.ResponseWriter, r *http.Request) {
		polls++
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := svc.AwaitVideo(context.Background(), "task-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoll))
	assert.Equal(t, 1, polls, "a failed poll must not be retried")
}

func TestAwaitVideoTimesOutAtCeiling(t *testing.T) {
	polls := 0
	svc, clock := newTestKling(t, func(w http.ResponseWriter, r *http.Request) {
		polls++
		json.NewEncoder(w).Encode(klingTaskResponse{Status: "processing"})
	})

	_, err := svc.AwaitVideo(context.Background(), "task-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVideoTimeout))
	assert.Equal(t, klingMaxPollAttempts, polls)
	assert.Equal(t, klingMaxPollAttempts-1, clock.fires)
}

func TestAwaitVideoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, _ := newTestKling(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(klingTaskResponse{Status: "processing"})
		cancel()
	})
	// Real clock here: cancellation must win the select against the timer.
	svc.clock = realClock{}

	_, err := svc.AwaitVideo(ctx, "task-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrPoll), "cancellation must not masquerade as a fatal poll error")
}

func TestAwaitVideoCancelledDuringPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel while the poll request is in flight: the HTTP call itself fails
	// with the cancellation, which must survive the error wrapping
	svc, _ := newTestKling(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	})
	svc.clock = realClock{}

	_, err := svc.AwaitVideo(ctx, "task-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
