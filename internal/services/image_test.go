package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestImageService points the go-openai client at a local fake and routes
// both the generation endpoint and any file downloads through mux.
func newTestImageService(t *testing.T, mux *http.ServeMux) (*ImageService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL
	return &ImageService{
		client:     openai.NewClientWithConfig(cfg),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}, server
}

func imageResponse(data []openai.ImageResponseDataInner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openai.ImageResponse{Data: data})
	}
}

func TestGenerateImageDecodesInlineBase64(t *testing.T) {
	want := []byte("fake-png-bytes")
	mux := http.NewServeMux()
	mux.HandleFunc("/images/generations", imageResponse([]openai.ImageResponseDataInner{
		{B64JSON: base64.StdEncoding.EncodeToString(want)},
	}))
	svc, _ := newTestImageService(t, mux)

	got, err := svc.GenerateImage(context.Background(), "a small rusty robot")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGenerateImageDownloadsURLShape(t *testing.T) {
	want := []byte("fake-png-via-url")
	mux := http.NewServeMux()
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(want)
	})

	var server *httptest.Server
	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openai.ImageResponse{
			Data: []openai.ImageResponseDataInner{{URL: server.URL + "/img.png"}},
		})
	})

	svc, srv := newTestImageService(t, mux)
	server = srv

	got, err := svc.GenerateImage(context.Background(), "a small rusty robot")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGenerateImageRejectsEmptyResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/images/generations", imageResponse([]openai.ImageResponseDataInner{
		{}, // neither b64_json nor url
	}))
	svc, _ := newTestImageService(t, mux)

	_, err := svc.GenerateImage(context.Background(), "a small rusty robot")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageGen))
}

func TestGenerateImageRejectsEmptyData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/images/generations", imageResponse(nil))
	svc, _ := newTestImageService(t, mux)

	_, err := svc.GenerateImage(context.Background(), "a small rusty robot")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageGen))
}

func TestGenerateImageWrapsUpstreamFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	})
	svc, _ := newTestImageService(t, mux)

	_, err := svc.GenerateImage(context.Background(), "a small rusty robot")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageGen))
}
