package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Veo Video Generation Service
// Alternative image-to-video provider using the Google Gen AI SDK. The scene
// image is passed as the first frame and the scene's video_prompt describes
// the motion. Selected at startup via VEO_ENABLED; satisfies the same
// generator seam as KlingService.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel    = "veo-3.1-generate-preview"
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute // Max time to wait for a single video
)

// VeoService handles video generation via Google's Veo model.
type VeoService struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewVeoService creates a new Veo video generation service.
// model: empty string defaults to veo-3.1-generate-preview.
func NewVeoService(apiKey, model string) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// buildVeoPrompt wraps the scene's raw video_prompt with style and motion
// instructions so independently generated clips stay visually coherent.
func buildVeoPrompt(rawPrompt string) string {
	return fmt.Sprintf(`%s

Visual style direction: Match the style of the input image exactly. Maintain its color grading, lighting, and rendering quality — the clip should look like the still image has come to life, not a restyled version of it.

Motion direction: Generate natural, continuous movement as described above. Favor grounded, realistic motion over dramatic or exaggerated movement. Avoid sudden jerky movements, unrealistic morphing, or style changes between frames.

Important: This is a fictional artistic scene. All subjects are unnamed, generic figures. Do not identify or associate any subject with a real person, celebrity, or public figure.

No generated audio or dialogue. Silent video only.`, rawPrompt)
}

// GenerateVideo generates a clip with the scene image as the first frame and
// returns the raw video bytes (MP4). The async operation is polled internally;
// this blocks the calling goroutine, which fits the worker architecture where
// each scene is processed in its own goroutine.
func (s *VeoService) GenerateVideo(ctx context.Context, prompt, imageURL string) ([]byte, error) {
	imageData, err := s.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scene image: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	enhancedPrompt := buildVeoPrompt(prompt)

	firstFrame := &genai.Image{
		ImageBytes: imageData,
		MIMEType:   "image/png",
	}

	// Portrait 9:16, allow people in image-to-video mode
	config := &genai.GenerateVideosConfig{
		AspectRatio:      "9:16",
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}

	log.Printf("[Veo] Starting video generation (model=%s, promptLen=%d, imageSize=%d bytes)", s.model, len(prompt), len(imageData))

	operation, err := client.Models.GenerateVideos(ctx, s.model, enhancedPrompt, firstFrame, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start video generation: %w", err)
	}

	log.Printf("[Veo] Operation started: %s", operation.Name)

	// Poll until done, cancelled, or timed out
	deadline := time.Now().Add(veoMaxPollDuration)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: no terminal status after %v (%d polls)", ErrVideoTimeout, veoMaxPollDuration, pollCount)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
		case <-time.After(veoPollInterval):
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: poll attempt %d: %v", ErrPoll, pollCount, err)
		}

		log.Printf("[Veo] Poll %d: done=%v", pollCount, operation.Done)
	}

	if operation.Error != nil && len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, fmt.Errorf("%w: %s", ErrVideoFailed, string(errJSON))
	}

	if operation.Response == nil {
		if operation.Metadata != nil {
			metaJSON, _ := json.Marshal(operation.Metadata)
			log.Printf("[Veo] Operation metadata: %s", string(metaJSON))
		}
		return nil, fmt.Errorf("%w: no response in completed operation after %d polls", ErrVideoFailed, pollCount)
	}

	// Safety-filter rejections surface here, not as operation errors
	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, fmt.Errorf("%w: blocked by safety filters (%d filtered, reasons: %s)", ErrVideoFailed, operation.Response.RAIMediaFilteredCount, reasons)
	}

	if len(operation.Response.GeneratedVideos) == 0 {
		respJSON, _ := json.Marshal(operation.Response)
		return nil, fmt.Errorf("%w: no videos in response (full response: %s)", ErrVideoFailed, string(respJSON))
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, fmt.Errorf("%w: generated video object is nil", ErrVideoFailed)
	}

	log.Printf("[Veo] Video ready, downloading...")

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Veo] Video generated successfully (%d bytes, %d polls)", len(videoBytes), pollCount)

	return videoBytes, nil
}

func (s *VeoService) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("fetched image is empty (0 bytes)")
	}

	return data, nil
}
