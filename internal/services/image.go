package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrImageGen marks an upstream image-generation failure. Per-scene and
// isolated: the scene's image URL stays null, siblings are unaffected.
var ErrImageGen = errors.New("image generation failed")

const (
	imageModel   = "gpt-image-1"
	imageSize    = openai.CreateImageSize1024x1792 // portrait
	imageQuality = openai.CreateImageQualityHigh
)

// ImageService generates still images for scenes via the OpenAI Images API.
// Each call is independent — safe for parallel execution across scenes.
type ImageService struct {
	client     *openai.Client
	httpClient *http.Client
}

func NewImageService(apiKey string) *ImageService {
	return &ImageService{
		client: openai.NewClient(apiKey),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GenerateImage requests one image for the scene's image prompt and
// normalizes the response to raw bytes. The API returns either a direct URL
// or base64-encoded data depending on the model and request format; both
// shapes are handled here so callers only ever see bytes.
func (s *ImageService) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Model:   imageModel,
		Prompt:  prompt,
		N:       1,
		Size:    imageSize,
		Quality: imageQuality,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageGen, err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no image in response", ErrImageGen)
	}

	result := resp.Data[0]

	// Inline base64 payload
	if result.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(result.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode base64 image: %v", ErrImageGen, err)
		}
		log.Printf("[Image] Generated image inline (%d bytes)", len(data))
		return data, nil
	}

	// Direct URL payload
	if result.URL != "" {
		data, err := s.downloadImage(ctx, result.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImageGen, err)
		}
		log.Printf("[Image] Generated image via URL (%d bytes)", len(data))
		return data, nil
	}

	return nil, fmt.Errorf("%w: response carried neither b64 data nor a URL", ErrImageGen)
}

func (s *ImageService) downloadImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("downloaded image is empty (0 bytes)")
	}

	return data, nil
}
