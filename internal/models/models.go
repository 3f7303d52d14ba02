package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enums
type ChatStatus string

const (
	ChatStatusPlanning      ChatStatus = "planning"
	ChatStatusImagesPending ChatStatus = "images_pending"
	ChatStatusVideosPending ChatStatus = "videos_pending"
	ChatStatusStitching     ChatStatus = "stitching"
	ChatStatusDone          ChatStatus = "done"
	ChatStatusFailed        ChatStatus = "failed"
)

type SceneState string

const (
	SceneStatePending    SceneState = "pending"
	SceneStateImageReady SceneState = "image_ready"
	SceneStateVideoReady SceneState = "video_ready"
	SceneStateFailed     SceneState = "failed"
)

// Scene count bounds accepted by the planner and the API.
const (
	MinSceneCount = 1
	MaxSceneCount = 99
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Models

// Chat groups an ordered sequence of scenes and at most one final stitched
// video. Deleting a chat cascades to its scenes and final video.
type Chat struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Title        string     `json:"title"`
	Prompt       string     `json:"prompt"`
	SceneCount   int        `json:"scene_count"`
	Status       ChatStatus `json:"status"`
	Plan         JSONB      `json:"plan,omitempty"` // Raw planner output, stored for debugging/replans
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Scene is one narrative beat of a chat. scene_number is 1-based and unique
// within a chat; image_url and video_url stay null until the corresponding
// synthesis stage succeeds.
type Scene struct {
	ID           uuid.UUID  `json:"id"`
	ChatID       uuid.UUID  `json:"chat_id"`
	SceneNumber  int        `json:"scene_number"`
	Prompt       string     `json:"prompt"`
	ImagePrompt  string     `json:"image_prompt"`
	VideoPrompt  *string    `json:"video_prompt,omitempty"`
	ImageURL     *string    `json:"image_url,omitempty"`
	VideoURL     *string    `json:"video_url,omitempty"`
	State        SceneState `json:"state"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FinalVideo is the stitched output for a chat. One row per chat, upserted
// by chat_id so reruns overwrite instead of duplicating.
type FinalVideo struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	VideoURL  string    `json:"video_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DTOs for API responses

type ChatResponse struct {
	Chat
	Scenes        []Scene `json:"scenes,omitempty"`
	FinalVideoURL *string `json:"final_video_url,omitempty"`
}

// ChatSummary is a lightweight DTO for the list endpoint — no scenes array,
// just core chat fields plus scene counts and the final video URL.
type ChatSummary struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Prompt        string     `json:"prompt"`
	SceneCount    int        `json:"scene_count"`
	ScenesReady   int        `json:"scenes_ready"`
	Status        ChatStatus `json:"status"`
	FinalVideoURL *string    `json:"final_video_url,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ListChatsResponse struct {
	Chats  []ChatSummary `json:"chats"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type CreateChatRequest struct {
	UserID     uuid.UUID `json:"user_id"`
	Title      *string   `json:"title,omitempty"`       // Default: derived from prompt
	Prompt     string    `json:"prompt"`                // Narrative prompt for the planner
	SceneCount *int      `json:"scene_count,omitempty"` // Default: 3, clamped to [1, 99]
}

type CreateChatResponse struct {
	ChatID uuid.UUID  `json:"chat_id"`
	Status ChatStatus `json:"status"`
}

type StageAcceptedResponse struct {
	ChatID      uuid.UUID `json:"chat_id"`
	SceneNumber *int      `json:"scene_number,omitempty"`
	Queued      string    `json:"queued"`
}
