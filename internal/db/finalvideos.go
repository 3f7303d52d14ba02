package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/storyreel/backend/internal/models"
)

// UpsertFinalVideo records the stitched output for a chat. Keyed by chat_id
// (not by a fresh id) so a re-run overwrites the existing row instead of
// creating a duplicate.
func (db *DB) UpsertFinalVideo(ctx context.Context, fv *models.FinalVideo) error {
	query := `
		INSERT INTO final_videos (id, chat_id, video_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE
		SET video_url = EXCLUDED.video_url, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		fv.ID, fv.ChatID, fv.VideoURL,
	).Scan(&fv.ID, &fv.CreatedAt, &fv.UpdatedAt)
}

// GetFinalVideo returns the chat's final video, or nil when none exists yet.
func (db *DB) GetFinalVideo(ctx context.Context, chatID uuid.UUID) (*models.FinalVideo, error) {
	query := `
		SELECT id, chat_id, video_url, created_at, updated_at
		FROM final_videos
		WHERE chat_id = $1
	`

	fv := &models.FinalVideo{}
	err := db.QueryRowContext(ctx, query, chatID).Scan(
		&fv.ID, &fv.ChatID, &fv.VideoURL, &fv.CreatedAt, &fv.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get final video: %w", err)
	}

	return fv, nil
}
