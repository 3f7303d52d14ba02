package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storyreel/backend/internal/db"
	"github.com/storyreel/backend/internal/models"
	"github.com/storyreel/backend/internal/queue"
	"github.com/storyreel/backend/internal/storage"
)

type Handler struct {
	db                *db.DB
	queue             *queue.Queue
	storage           *storage.Storage
	defaultSceneCount int
}

func NewHandler(database *db.DB, q *queue.Queue, stor *storage.Storage, defaultSceneCount int) *Handler {
	if defaultSceneCount < models.MinSceneCount || defaultSceneCount > models.MaxSceneCount {
		defaultSceneCount = 3
	}
	return &Handler{
		db:                database,
		queue:             q,
		storage:           stor,
		defaultSceneCount: defaultSceneCount,
	}
}

// CreateChat handles POST /v1/chats
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req models.CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	if req.UserID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sceneCount := h.defaultSceneCount
	if req.SceneCount != nil {
		sceneCount = *req.SceneCount
	}
	if sceneCount < models.MinSceneCount {
		sceneCount = models.MinSceneCount
	}
	if sceneCount > models.MaxSceneCount {
		sceneCount = models.MaxSceneCount
	}

	title := deriveTitle(req.Prompt)
	if req.Title != nil && *req.Title != "" {
		title = *req.Title
	}

	chat := &models.Chat{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Title:      title,
		Prompt:     req.Prompt,
		SceneCount: sceneCount,
		Status:     models.ChatStatusPlanning,
	}

	if err := h.db.CreateChat(r.Context(), chat); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create chat")
		return
	}

	if err := h.queue.EnqueueRunChat(r.Context(), chat.ID, false); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue pipeline run")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateChatResponse{
		ChatID: chat.ID,
		Status: chat.Status,
	})
}

// ListChats handles GET /v1/chats
// Query params:
//   - status: filter by chat status (planning, images_pending, videos_pending, stitching, done, failed)
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.ChatStatus(statusFilter) {
		case models.ChatStatusPlanning, models.ChatStatusImagesPending,
			models.ChatStatusVideosPending, models.ChatStatusStitching,
			models.ChatStatusDone, models.ChatStatusFailed:
			// valid
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: planning, images_pending, videos_pending, stitching, done, failed")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.db.CountChats(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count chats")
		return
	}

	chats, err := h.db.ListChats(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list chats")
		return
	}

	// Build lightweight summaries — no scenes array, just progress + final video URL
	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := models.ChatSummary{
			ID:           chat.ID,
			Title:        chat.Title,
			Prompt:       chat.Prompt,
			SceneCount:   chat.SceneCount,
			Status:       chat.Status,
			ErrorMessage: chat.ErrorMessage,
			CreatedAt:    chat.CreatedAt,
			UpdatedAt:    chat.UpdatedAt,
		}

		if ready, err := h.db.CountScenesInState(r.Context(), chat.ID, models.SceneStateVideoReady); err == nil {
			summary.ScenesReady = ready
		}

		if fv, err := h.db.GetFinalVideo(r.Context(), chat.ID); err == nil && fv != nil {
			summary.FinalVideoURL = &fv.VideoURL
		}

		summaries = append(summaries, summary)
	}

	respondJSON(w, http.StatusOK, models.ListChatsResponse{
		Chats:  summaries,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetChat handles GET /v1/chats/{id}
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	chat, err := h.db.GetChat(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Chat not found")
		return
	}

	scenes, err := h.db.GetChatScenes(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get scenes")
		return
	}

	response := models.ChatResponse{
		Chat:   *chat,
		Scenes: scenes,
	}

	if fv, err := h.db.GetFinalVideo(r.Context(), chatID); err == nil && fv != nil {
		response.FinalVideoURL = &fv.VideoURL
	}

	respondJSON(w, http.StatusOK, response)
}

// DeleteChat handles DELETE /v1/chats/{id}.
// Scenes and the final video row cascade with the chat.
func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	if err := h.db.DeleteChat(r.Context(), chatID); err != nil {
		respondError(w, http.StatusNotFound, "Chat not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerSceneImage handles POST /v1/chats/{id}/scenes/{sceneNumber}/image.
// Re-running is safe: a ready scene is skipped unless ?force=true, and a
// forced rerun overwrites the same artifact path.
func (h *Handler) TriggerSceneImage(w http.ResponseWriter, r *http.Request) {
	chatID, scene, ok := h.resolveScene(w, r)
	if !ok {
		return
	}

	force := r.URL.Query().Get("force") == "true"
	if err := h.queue.EnqueueSceneImage(r.Context(), chatID, scene.ID, force); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.StageAcceptedResponse{
		ChatID:      chatID,
		SceneNumber: &scene.SceneNumber,
		Queued:      "scene_image",
	})
}

// TriggerSceneVideo handles POST /v1/chats/{id}/scenes/{sceneNumber}/video
func (h *Handler) TriggerSceneVideo(w http.ResponseWriter, r *http.Request) {
	chatID, scene, ok := h.resolveScene(w, r)
	if !ok {
		return
	}

	if scene.ImageURL == nil {
		respondError(w, http.StatusConflict, "Scene has no image yet; run image synthesis first")
		return
	}

	force := r.URL.Query().Get("force") == "true"
	if err := h.queue.EnqueueSceneVideo(r.Context(), chatID, scene.ID, force); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.StageAcceptedResponse{
		ChatID:      chatID,
		SceneNumber: &scene.SceneNumber,
		Queued:      "scene_video",
	})
}

// TriggerStitch handles POST /v1/chats/{id}/stitch
func (h *Handler) TriggerStitch(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	if _, err := h.db.GetChat(r.Context(), chatID); err != nil {
		respondError(w, http.StatusNotFound, "Chat not found")
		return
	}

	if err := h.queue.EnqueueStitchChat(r.Context(), chatID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.StageAcceptedResponse{
		ChatID: chatID,
		Queued: "stitch_chat",
	})
}

// resolveScene parses {id}/{sceneNumber} and loads the scene row. Writes the
// error response itself when resolution fails.
func (h *Handler) resolveScene(w http.ResponseWriter, r *http.Request) (uuid.UUID, *models.Scene, bool) {
	chatID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid chat ID")
		return uuid.Nil, nil, false
	}

	sceneNumber, err := strconv.Atoi(chi.URLParam(r, "sceneNumber"))
	if err != nil || sceneNumber < 1 {
		respondError(w, http.StatusBadRequest, "Invalid scene number")
		return uuid.Nil, nil, false
	}

	scene, err := h.db.GetSceneByNumber(r.Context(), chatID, sceneNumber)
	if err != nil {
		respondError(w, http.StatusNotFound, "Scene not found")
		return uuid.Nil, nil, false
	}

	return chatID, scene, true
}

// deriveTitle builds a default chat title from the first words of the prompt.
func deriveTitle(prompt string) string {
	const maxTitleLen = 80
	if len(prompt) <= maxTitleLen {
		return prompt
	}
	return prompt[:maxTitleLen] + "..."
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
