package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Kling Image-to-Video Generation Service
// Uses the Kling REST API to animate a still image into a short clip.
// Follows a deferred request pattern: submit generation → poll by task_id → download.
// ---------------------------------------------------------------------------

// Video generation error taxonomy. Each failure mode is per-scene and
// isolated: the scene's video URL stays null, sibling scenes keep polling.
var (
	// ErrPoll: a poll request itself failed (non-2xx or transport error).
	// The job is abandoned, not resubmitted.
	ErrPoll = errors.New("video poll failed")

	// ErrVideoFailed: the remote job reached the failed terminal state.
	ErrVideoFailed = errors.New("video generation failed")

	// ErrVideoTimeout: the job did not reach a terminal state within the
	// poll budget.
	ErrVideoTimeout = errors.New("video generation timed out")
)

// VideoJobState tracks a remote job through the polling state machine:
// submitted → polling → completed | failed | timed_out.
type VideoJobState string

const (
	VideoJobSubmitted VideoJobState = "submitted"
	VideoJobPolling   VideoJobState = "polling"
	VideoJobCompleted VideoJobState = "completed"
	VideoJobFailed    VideoJobState = "failed"
	VideoJobTimedOut  VideoJobState = "timed_out"
)

const (
	klingVideoModel = "kling-v1-6"

	// Fixed 1-second cadence, 120 attempts: a 2-minute wall-clock ceiling
	// per job before the loop gives up with ErrVideoTimeout.
	klingPollInterval    = 1 * time.Second
	klingMaxPollAttempts = 120

	klingDefaultDuration = 5 // seconds
)

// Clock abstracts the poll timer so tests can drive the 120-attempt ceiling
// deterministically.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// KlingService handles image-to-video generation via the Kling REST API.
type KlingService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	clock      Clock
}

// NewKlingService creates a new Kling video generation service.
// baseURL is overridable for tests; empty means the production endpoint.
func NewKlingService(apiKey, baseURL string) *KlingService {
	if baseURL == "" {
		baseURL = "https://api.klingai.com/v1"
	}
	return &KlingService{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // Per-call timeout, not the full poll cycle
		},
		clock: realClock{},
	}
}

// WithClock replaces the poll timer. Test hook.
func (s *KlingService) WithClock(c Clock) *KlingService {
	s.clock = c
	return s
}

// ---------------------------------------------------------------------------
// Request / Response types
// ---------------------------------------------------------------------------

// VideoJobRequest carries the submit parameters for one scene's clip.
type VideoJobRequest struct {
	ImageURL    string // Publicly accessible source image
	Prompt      string // Optional motion description
	DurationSec int    // 0 = provider default
	Seed        int64  // 0 = random
}

type klingSubmitRequest struct {
	Model    string `json:"model"`
	Image    string `json:"image"`
	Prompt   string `json:"prompt,omitempty"`
	Duration int    `json:"duration"`
	Seed     int64  `json:"seed"`
}

type klingSubmitResponse struct {
	TaskID string `json:"task_id"`
}

type klingTaskResponse struct {
	Status string `json:"status"` // "submitted", "processing", "succeed", "failed", ...
	Videos []struct {
		URL string `json:"url"`
	} `json:"videos,omitempty"`
	Error string `json:"error,omitempty"`
}

// PollResult is the outcome of one poll: either a terminal state
// (completed with a result URL, or failed with an upstream message) or
// still-running.
type PollResult struct {
	State    VideoJobState
	VideoURL string
	Message  string
}

// Terminal reports whether no further polling can change the outcome.
func (r *PollResult) Terminal() bool {
	return r.State == VideoJobCompleted || r.State == VideoJobFailed
}

// ---------------------------------------------------------------------------
// Submit / Poll / Await
// ---------------------------------------------------------------------------

// Submit sends the generation request and returns the remote job id.
func (s *KlingService) Submit(ctx context.Context, req VideoJobRequest) (string, error) {
	duration := req.DurationSec
	if duration <= 0 {
		duration = klingDefaultDuration
	}
	seed := req.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	body := klingSubmitRequest{
		Model:    klingVideoModel,
		Image:    req.ImageURL,
		Prompt:   req.Prompt,
		Duration: duration,
		Seed:     seed,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/videos/image2video", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("kling returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var submitResp klingSubmitResponse
	if err := json.Unmarshal(respBody, &submitResp); err != nil {
		return "", fmt.Errorf("failed to parse submit response: %w (body: %s)", err, string(respBody))
	}

	if submitResp.TaskID == "" {
		return "", fmt.Errorf("no task_id in submit response: %s", string(respBody))
	}

	return submitResp.TaskID, nil
}

// Poll fetches the job status once. It is scheduler-agnostic: it never
// sleeps, so any driver (AwaitVideo, a cron, a test) can own the cadence.
//
// A non-2xx response is fatal for the job — the caller must abandon it
// (ErrPoll), not retry the poll. A 2xx response maps onto the state machine:
// succeed → completed with a result URL, failed → failed with the upstream
// message, anything else → still polling.
func (s *KlingService) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/videos/image2video/%s", s.baseURL, jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrPoll, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Keep the transport cause in the chain: a context cancellation
		// must stay recognizable to the caller
		return nil, fmt.Errorf("%w: %w", ErrPoll, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrPoll, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: kling returned status %d: %s", ErrPoll, resp.StatusCode, string(body))
	}

	var task klingTaskResponse
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("%w: failed to parse poll response: %v (body: %s)", ErrPoll, err, string(body))
	}

	switch task.Status {
	case "succeed", "completed":
		if len(task.Videos) == 0 || task.Videos[0].URL == "" {
			return nil, fmt.Errorf("%w: job completed but response carried no video URL", ErrPoll)
		}
		return &PollResult{State: VideoJobCompleted, VideoURL: task.Videos[0].URL}, nil

	case "failed":
		msg := task.Error
		if msg == "" {
			msg = "unknown error"
		}
		return &PollResult{State: VideoJobFailed, Message: msg}, nil

	default:
		// "submitted", "processing", or any unrecognized in-progress value
		return &PollResult{State: VideoJobPolling}, nil
	}
}

// AwaitVideo drives the poll state machine to a terminal state: fixed
// 1-second cadence, at most 120 attempts. Returns the remote result URL on
// completion. One job's timeout or failure never touches sibling jobs — the
// caller owns per-scene isolation.
func (s *KlingService) AwaitVideo(ctx context.Context, jobID string) (string, error) {
	for attempt := 1; attempt <= klingMaxPollAttempts; attempt++ {
		result, err := s.Poll(ctx, jobID)
		if err != nil {
			// A cancelled caller is not a fatal poll failure
			if ctx.Err() != nil {
				return "", fmt.Errorf("video generation cancelled: %w", ctx.Err())
			}
			// Fatal for this job — abandon, do not resubmit
			return "", fmt.Errorf("poll attempt %d: %w", attempt, err)
		}

		switch result.State {
		case VideoJobCompleted:
			log.Printf("[Kling] Task %s completed after %d polls", jobID, attempt)
			return result.VideoURL, nil

		case VideoJobFailed:
			return "", fmt.Errorf("%w: %s (task_id=%s)", ErrVideoFailed, result.Message, jobID)

		default:
			if attempt == klingMaxPollAttempts {
				break // Budget spent — fall through to timeout
			}
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("video generation cancelled: %w", ctx.Err())
			case <-s.clock.After(klingPollInterval):
			}
		}
	}

	return "", fmt.Errorf("%w: no terminal status after %d attempts (task_id=%s)", ErrVideoTimeout, klingMaxPollAttempts, jobID)
}

// GenerateVideo runs the full submit → poll → download cycle and returns the
// raw video bytes (MP4).
func (s *KlingService) GenerateVideo(ctx context.Context, prompt, imageURL string) ([]byte, error) {
	log.Printf("[Kling] Submitting image-to-video task (promptLen=%d, image=%s)", len(prompt), truncateURL(imageURL))

	jobID, err := s.Submit(ctx, VideoJobRequest{
		ImageURL: imageURL,
		Prompt:   prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit video generation: %w", err)
	}

	log.Printf("[Kling] Task submitted, task_id=%s", jobID)

	videoURL, err := s.AwaitVideo(ctx, jobID)
	if err != nil {
		return nil, err
	}

	log.Printf("[Kling] Video ready, downloading from result URL...")

	videoBytes, err := s.downloadVideo(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Kling] Video downloaded successfully (%d bytes)", len(videoBytes))
	return videoBytes, nil
}

// downloadVideo fetches the video bytes from the given URL.
func (s *KlingService) downloadVideo(ctx context.Context, videoURL string) ([]byte, error) {
	// Use a longer timeout for video download (videos can be large)
	downloadClient := &http.Client{Timeout: 120 * time.Second}

	req, err := http.NewRequestWithContext(ctx, "GET", videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read video data: %w", err)
	}

	return data, nil
}

func truncateURL(s string) string {
	if len(s) <= 80 {
		return s
	}
	return s[:80] + "..."
}
