package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/storyreel/backend/internal/models"
)

func (db *DB) CreateChat(ctx context.Context, chat *models.Chat) error {
	query := `
		INSERT INTO chats (
			id, user_id, title, prompt, scene_count, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		chat.ID, chat.UserID, chat.Title, chat.Prompt,
		chat.SceneCount, chat.Status,
	).Scan(&chat.CreatedAt, &chat.UpdatedAt)
}

func (db *DB) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	query := `
		SELECT
			id, user_id, title, prompt, scene_count, status,
			plan, error_message, created_at, updated_at
		FROM chats
		WHERE id = $1
	`

	chat := &models.Chat{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&chat.ID, &chat.UserID, &chat.Title, &chat.Prompt,
		&chat.SceneCount, &chat.Status, &chat.Plan,
		&chat.ErrorMessage, &chat.CreatedAt, &chat.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chat not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	return chat, nil
}

// ListChats returns chats ordered by creation date (newest first).
// Supports optional status filter, limit, and offset for pagination.
func (db *DB) ListChats(ctx context.Context, status string, limit, offset int) ([]models.Chat, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `
		SELECT
			id, user_id, title, prompt, scene_count, status,
			plan, error_message, created_at, updated_at
		FROM chats
	`

	if status != "" {
		query := baseSelect + ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := baseSelect + ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = db.QueryContext(ctx, query, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Title, &c.Prompt,
			&c.SceneCount, &c.Status, &c.Plan,
			&c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, c)
	}

	return chats, nil
}

// CountChats returns the total number of chats, optionally filtered by status.
func (db *DB) CountChats(ctx context.Context, status string) (int, error) {
	var count int
	if status != "" {
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE status = $1`, status).Scan(&count)
		return count, err
	}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

func (db *DB) UpdateChatStatus(ctx context.Context, id uuid.UUID, status models.ChatStatus) error {
	query := `UPDATE chats SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

func (db *DB) UpdateChatPlan(ctx context.Context, id uuid.UUID, plan models.JSONB) error {
	query := `UPDATE chats SET plan = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, plan, id)
	return err
}

func (db *DB) UpdateChatError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE chats
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.ChatStatusFailed, errorMessage, id)
	return err
}

// DeleteChat removes a chat; scenes and final_videos rows cascade via
// their foreign keys.
func (db *DB) DeleteChat(ctx context.Context, id uuid.UUID) error {
	result, err := db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("chat not found")
	}
	return nil
}
