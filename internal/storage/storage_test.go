package storage

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestArtifactPathsAreDeterministic(t *testing.T) {
	chatID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	userID := uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

	first := SceneImagePath(chatID, 2)
	second := SceneImagePath(chatID, 2)
	if first != second {
		t.Errorf("image path not stable across calls: %s vs %s", first, second)
	}

	want := "scene_6ba7b810-9dad-11d1-80b4-00c04fd430c8_2.png"
	if first != want {
		t.Errorf("unexpected image path: got %s, want %s", first, want)
	}

	videoPath := SceneVideoPath(userID, chatID, 2)
	wantVideo := "6ba7b811-9dad-11d1-80b4-00c04fd430c8/6ba7b810-9dad-11d1-80b4-00c04fd430c8/scene_video_2.mp4"
	if videoPath != wantVideo {
		t.Errorf("unexpected video path: got %s, want %s", videoPath, wantVideo)
	}

	finalPath := FinalVideoPath(userID, chatID)
	wantFinal := "6ba7b811-9dad-11d1-80b4-00c04fd430c8/6ba7b810-9dad-11d1-80b4-00c04fd430c8/final.mp4"
	if finalPath != wantFinal {
		t.Errorf("unexpected final path: got %s, want %s", finalPath, wantFinal)
	}
}

func TestGetPublicURL(t *testing.T) {
	s := New("https://proj.supabase.co", "key", "storyreel-media")

	url := s.GetPublicURL("a/b/final.mp4")
	want := "https://proj.supabase.co/storage/v1/object/public/storyreel-media/a/b/final.mp4"
	if url != want {
		t.Errorf("got %s, want %s", url, want)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{
		http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
	for _, status := range retryable {
		if !isRetryableStatus(status) {
			t.Errorf("expected %d to be retryable", status)
		}
	}

	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusRequestEntityTooLarge} {
		if isRetryableStatus(status) {
			t.Errorf("expected %d to be non-retryable", status)
		}
	}
}
