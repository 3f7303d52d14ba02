package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/storyreel/backend/internal/models"
)

func (db *DB) CreateScene(ctx context.Context, scene *models.Scene) error {
	query := `
		INSERT INTO scenes (
			id, chat_id, scene_number, prompt, image_prompt,
			video_prompt, state
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		scene.ID, scene.ChatID, scene.SceneNumber, scene.Prompt,
		scene.ImagePrompt, scene.VideoPrompt, scene.State,
	).Scan(&scene.CreatedAt, &scene.UpdatedAt)
}

func (db *DB) GetScene(ctx context.Context, id uuid.UUID) (*models.Scene, error) {
	query := `
		SELECT
			id, chat_id, scene_number, prompt, image_prompt,
			video_prompt, image_url, video_url, state, error_message,
			created_at, updated_at
		FROM scenes
		WHERE id = $1
	`

	scene := &models.Scene{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&scene.ID, &scene.ChatID, &scene.SceneNumber, &scene.Prompt,
		&scene.ImagePrompt, &scene.VideoPrompt, &scene.ImageURL,
		&scene.VideoURL, &scene.State, &scene.ErrorMessage,
		&scene.CreatedAt, &scene.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scene not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scene: %w", err)
	}

	return scene, nil
}

// GetSceneByNumber looks up a scene by its 1-based number within a chat.
func (db *DB) GetSceneByNumber(ctx context.Context, chatID uuid.UUID, sceneNumber int) (*models.Scene, error) {
	query := `
		SELECT
			id, chat_id, scene_number, prompt, image_prompt,
			video_prompt, image_url, video_url, state, error_message,
			created_at, updated_at
		FROM scenes
		WHERE chat_id = $1 AND scene_number = $2
	`

	scene := &models.Scene{}
	err := db.QueryRowContext(ctx, query, chatID, sceneNumber).Scan(
		&scene.ID, &scene.ChatID, &scene.SceneNumber, &scene.Prompt,
		&scene.ImagePrompt, &scene.VideoPrompt, &scene.ImageURL,
		&scene.VideoURL, &scene.State, &scene.ErrorMessage,
		&scene.CreatedAt, &scene.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scene not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scene: %w", err)
	}

	return scene, nil
}

// GetChatScenes returns all scenes of a chat in scene-number order.
func (db *DB) GetChatScenes(ctx context.Context, chatID uuid.UUID) ([]models.Scene, error) {
	query := `
		SELECT
			id, chat_id, scene_number, prompt, image_prompt,
			video_prompt, image_url, video_url, state, error_message,
			created_at, updated_at
		FROM scenes
		WHERE chat_id = $1
		ORDER BY scene_number
	`

	rows, err := db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.Scene
	for rows.Next() {
		var scene models.Scene
		err := rows.Scan(
			&scene.ID, &scene.ChatID, &scene.SceneNumber, &scene.Prompt,
			&scene.ImagePrompt, &scene.VideoPrompt, &scene.ImageURL,
			&scene.VideoURL, &scene.State, &scene.ErrorMessage,
			&scene.CreatedAt, &scene.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scenes = append(scenes, scene)
	}

	return scenes, nil
}

func (db *DB) UpdateSceneImageURL(ctx context.Context, id uuid.UUID, imageURL string) error {
	query := `
		UPDATE scenes
		SET image_url = $1, state = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, imageURL, models.SceneStateImageReady, id)
	return err
}

func (db *DB) UpdateSceneVideoURL(ctx context.Context, id uuid.UUID, videoURL string) error {
	query := `
		UPDATE scenes
		SET video_url = $1, state = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, videoURL, models.SceneStateVideoReady, id)
	return err
}

func (db *DB) UpdateSceneError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE scenes
		SET state = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.SceneStateFailed, errorMessage, id)
	return err
}

// CountScenesInState returns how many of a chat's scenes are in the given state.
func (db *DB) CountScenesInState(ctx context.Context, chatID uuid.UUID, state models.SceneState) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scenes WHERE chat_id = $1 AND state = $2`,
		chatID, state,
	).Scan(&count)
	return count, err
}

// AreAllScenesVideoReady reports whether every scene of a chat has a video.
func (db *DB) AreAllScenesVideoReady(ctx context.Context, chatID uuid.UUID) (bool, error) {
	query := `
		SELECT COUNT(*) = 0
		FROM scenes
		WHERE chat_id = $1 AND state != $2
	`

	var allReady bool
	err := db.QueryRowContext(ctx, query, chatID, models.SceneStateVideoReady).Scan(&allReady)
	return allReady, err
}
