package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/storyreel/backend/internal/models"
	"github.com/storyreel/backend/internal/services"
	"github.com/storyreel/backend/internal/storage"
)

// ---------------------------------------------------------------------------
// Pipeline orchestrator
// Drives a chat through planning → images_pending → videos_pending →
// stitching → done. Every external collaborator is an injected interface so
// the whole state machine is testable with doubles.
// ---------------------------------------------------------------------------

// ScenePlanner turns a narrative prompt into an ordered scene plan.
type ScenePlanner interface {
	PlanScenes(ctx context.Context, prompt string, sceneCount int) (*services.StoryPlan, error)
}

// ImageGenerator produces a still image for one scene.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// VideoGenerator animates a scene image into a clip and returns the raw
// video bytes. Implementations block through their own submit/poll cycle.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, prompt, imageURL string) ([]byte, error)
}

// BlobStore is the artifact store (scene images, scene clips, final videos).
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	FetchURL(ctx context.Context, url string) ([]byte, error)
	GetPublicURL(path string) string
}

// Stitcher concatenates downloaded clips into one normalized file.
type Stitcher interface {
	WriteConcatManifest(dir string, clipPaths []string) (string, error)
	ConcatReencode(ctx context.Context, manifestPath, outputPath string) error
}

// Store is the metadata store. *db.DB satisfies it.
type Store interface {
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	UpdateChatStatus(ctx context.Context, id uuid.UUID, status models.ChatStatus) error
	UpdateChatPlan(ctx context.Context, id uuid.UUID, plan models.JSONB) error
	UpdateChatError(ctx context.Context, id uuid.UUID, errorMessage string) error

	CreateScene(ctx context.Context, scene *models.Scene) error
	GetScene(ctx context.Context, id uuid.UUID) (*models.Scene, error)
	GetChatScenes(ctx context.Context, chatID uuid.UUID) ([]models.Scene, error)
	UpdateSceneImageURL(ctx context.Context, id uuid.UUID, imageURL string) error
	UpdateSceneVideoURL(ctx context.Context, id uuid.UUID, videoURL string) error
	UpdateSceneError(ctx context.Context, id uuid.UUID, errorMessage string) error
	AreAllScenesVideoReady(ctx context.Context, chatID uuid.UUID) (bool, error)

	UpsertFinalVideo(ctx context.Context, fv *models.FinalVideo) error
}

type Pipeline struct {
	store    Store
	blobs    BlobStore
	planner  ScenePlanner
	images   ImageGenerator
	videos   VideoGenerator
	stitcher Stitcher

	tempDir       string
	maxConcurrent int
}

func New(store Store, blobs BlobStore, planner ScenePlanner, images ImageGenerator, videos VideoGenerator, stitcher Stitcher, tempDir string, maxConcurrent int) *Pipeline {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pipeline{
		store:         store,
		blobs:         blobs,
		planner:       planner,
		images:        images,
		videos:        videos,
		stitcher:      stitcher,
		tempDir:       tempDir,
		maxConcurrent: maxConcurrent,
	}
}

// ---------------------------------------------------------------------------
// Planning
// ---------------------------------------------------------------------------

// PlanChat generates the scene plan and creates the scene rows. A chat that
// already has scenes is left alone — the plan is stable across reruns; force
// only re-runs the generation stages, never re-plans.
func (p *Pipeline) PlanChat(ctx context.Context, chatID uuid.UUID) error {
	chat, err := p.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}

	existing, err := p.store.GetChatScenes(ctx, chatID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Printf("[Pipeline] Chat %s already has %d scenes, skipping planning", chatID, len(existing))
		return nil
	}

	if err := p.store.UpdateChatStatus(ctx, chatID, models.ChatStatusPlanning); err != nil {
		return err
	}

	plan, err := p.planner.PlanScenes(ctx, chat.Prompt, chat.SceneCount)
	if err != nil {
		p.failChat(ctx, chatID, fmt.Sprintf("planning failed: %v", err))
		return err
	}

	// Keep the raw plan on the chat row for debugging and replans
	if planJSON := toJSONB(plan); planJSON != nil {
		if err := p.store.UpdateChatPlan(ctx, chatID, planJSON); err != nil {
			log.Printf("[Pipeline] Failed to store plan for chat %s: %v", chatID, err)
		}
	}

	for _, sp := range plan.Scenes {
		scene := &models.Scene{
			ID:          uuid.New(),
			ChatID:      chatID,
			SceneNumber: sp.SceneNumber,
			Prompt:      sp.Prompt,
			ImagePrompt: sp.ImagePrompt,
			State:       models.SceneStatePending,
		}
		if sp.VideoPrompt != "" {
			vp := sp.VideoPrompt
			scene.VideoPrompt = &vp
		}
		if err := p.store.CreateScene(ctx, scene); err != nil {
			p.failChat(ctx, chatID, fmt.Sprintf("failed to create scene %d: %v", sp.SceneNumber, err))
			return fmt.Errorf("failed to create scene %d: %w", sp.SceneNumber, err)
		}
	}

	log.Printf("[Pipeline] Chat %s planned: %d scenes", chatID, len(plan.Scenes))
	return nil
}

// ---------------------------------------------------------------------------
// Per-scene stages
// ---------------------------------------------------------------------------

// GenerateSceneImage runs image synthesis for one scene. A scene that
// already has an image is skipped unless force. Failure marks only this
// scene failed.
func (p *Pipeline) GenerateSceneImage(ctx context.Context, chat *models.Chat, scene *models.Scene, force bool) error {
	if scene.ImageURL != nil && !force {
		log.Printf("[Pipeline] Scene %d of chat %s already has an image, skipping", scene.SceneNumber, chat.ID)
		return nil
	}

	data, err := p.images.GenerateImage(ctx, scene.ImagePrompt)
	if err != nil {
		p.failScene(ctx, scene.ID, err)
		return err
	}

	path := storage.SceneImagePath(chat.ID, scene.SceneNumber)
	if err := p.blobs.Upload(ctx, path, data, "image/png"); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrStorage, err)
		p.failScene(ctx, scene.ID, wrapped)
		return wrapped
	}

	publicURL := p.blobs.GetPublicURL(path)
	if err := p.store.UpdateSceneImageURL(ctx, scene.ID, publicURL); err != nil {
		// The video stage reads image_url from the row, so this write is
		// load-bearing, not best-effort.
		return fmt.Errorf("%w: scene image url: %v", ErrMetadataWrite, err)
	}

	scene.ImageURL = &publicURL
	scene.State = models.SceneStateImageReady
	log.Printf("[Pipeline] Scene %d of chat %s image ready", scene.SceneNumber, chat.ID)
	return nil
}

// GenerateSceneVideo runs video synthesis for one scene: submit the scene
// image to the generator, wait out the poll cycle, upload the clip, record
// the URL. Skipped when a video already exists unless force.
func (p *Pipeline) GenerateSceneVideo(ctx context.Context, chat *models.Chat, scene *models.Scene, force bool) error {
	if scene.VideoURL != nil && !force {
		log.Printf("[Pipeline] Scene %d of chat %s already has a video, skipping", scene.SceneNumber, chat.ID)
		return nil
	}

	if scene.ImageURL == nil {
		err := fmt.Errorf("scene %d has no image, cannot generate video", scene.SceneNumber)
		p.failScene(ctx, scene.ID, err)
		return err
	}

	// video_prompt is the motion description; fall back to the narrative
	// prompt when the planner omitted it
	prompt := scene.Prompt
	if scene.VideoPrompt != nil && *scene.VideoPrompt != "" {
		prompt = *scene.VideoPrompt
	}

	data, err := p.videos.GenerateVideo(ctx, prompt, *scene.ImageURL)
	if err != nil {
		p.failScene(ctx, scene.ID, err)
		return err
	}

	path := storage.SceneVideoPath(chat.UserID, chat.ID, scene.SceneNumber)
	if err := p.blobs.Upload(ctx, path, data, "video/mp4"); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrStorage, err)
		p.failScene(ctx, scene.ID, wrapped)
		return wrapped
	}

	publicURL := p.blobs.GetPublicURL(path)
	if err := p.RecordSceneVideo(ctx, scene.ID.String(), publicURL); err != nil {
		return err
	}

	scene.VideoURL = &publicURL
	scene.State = models.SceneStateVideoReady
	log.Printf("[Pipeline] Scene %d of chat %s video ready", scene.SceneNumber, chat.ID)
	return nil
}

// RecordSceneVideo writes the scene's video URL. sceneRef is the scene
// reference carried through the job payload; one that is not a well-formed
// UUID means the artifact exists but cannot be attributed to a row — that is
// logged as an anomaly and the write is skipped, never attempted with a
// mangled key.
func (p *Pipeline) RecordSceneVideo(ctx context.Context, sceneRef, videoURL string) error {
	id, err := uuid.Parse(sceneRef)
	if err != nil {
		log.Printf("[Pipeline] Anomaly: scene reference %q is not a UUID — video uploaded to %s but metadata not recorded", sceneRef, videoURL)
		return nil
	}

	if err := p.store.UpdateSceneVideoURL(ctx, id, videoURL); err != nil {
		return fmt.Errorf("%w: scene video url: %v", ErrMetadataWrite, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stitching
// ---------------------------------------------------------------------------

// StitchChat concatenates the chat's scene clips, in scene order, into the
// final video. Requires at least two clips — checked before anything is
// downloaded. The working directory is scoped to this invocation and removed
// on every exit path.
func (p *Pipeline) StitchChat(ctx context.Context, chat *models.Chat) (*models.FinalVideo, error) {
	scenes, err := p.store.GetChatScenes(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	var clipURLs []string
	for _, scene := range scenes {
		if scene.VideoURL != nil && *scene.VideoURL != "" {
			clipURLs = append(clipURLs, *scene.VideoURL)
		}
	}

	// Precondition failure scopes to this call only: the per-scene media is
	// still usable, so the chat's status is left untouched
	if len(clipURLs) < 2 {
		return nil, fmt.Errorf("%w: have %d, need at least 2", ErrInsufficientInput, len(clipURLs))
	}

	if err := p.store.UpdateChatStatus(ctx, chat.ID, models.ChatStatusStitching); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.tempDir, 0755); err != nil {
		return nil, p.stitchFailed(ctx, chat.ID, fmt.Errorf("failed to create temp root: %w", err))
	}

	workDir, err := os.MkdirTemp(p.tempDir, "stitch_")
	if err != nil {
		return nil, p.stitchFailed(ctx, chat.ID, fmt.Errorf("failed to create work dir: %w", err))
	}
	defer os.RemoveAll(workDir)

	log.Printf("[Pipeline] Stitching chat %s: %d clips (workdir=%s)", chat.ID, len(clipURLs), workDir)

	clipPaths := make([]string, 0, len(clipURLs))
	for i, url := range clipURLs {
		data, err := p.blobs.FetchURL(ctx, url)
		if err != nil {
			return nil, p.stitchFailed(ctx, chat.ID, fmt.Errorf("%w: clip %d: %v", ErrDownload, i+1, err))
		}

		clipPath := filepath.Join(workDir, fmt.Sprintf("clip_%03d.mp4", i+1))
		if err := os.WriteFile(clipPath, data, 0644); err != nil {
			return nil, p.stitchFailed(ctx, chat.ID, fmt.Errorf("%w: clip %d: %v", ErrDownload, i+1, err))
		}
		clipPaths = append(clipPaths, clipPath)
	}

	manifestPath, err := p.stitcher.WriteConcatManifest(workDir, clipPaths)
	if err != nil {
		return nil, p.stitchFailed(ctx, chat.ID, fmt.Errorf("%w: %v", ErrTranscode, err))
	}

	outputPath := filepath.Join(workDir, "final.mp4")
	if err := p.stitcher.ConcatReencode(ctx, manifestPath, outputPath); err != nil {
		return nil, p.stitchFailed(ctx, chat.ID, fmt.Errorf("%w: %v", ErrTranscode, err))
	}

	finalData, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, p.stitchFailed(ctx, chat.ID, fmt.Errorf("%w: %v", ErrTranscode, err))
	}

	path := storage.FinalVideoPath(chat.UserID, chat.ID)
	if err := p.blobs.Upload(ctx, path, finalData, "video/mp4"); err != nil {
		return nil, p.stitchFailed(ctx, chat.ID, fmt.Errorf("%w: %v", ErrStorage, err))
	}

	publicURL := p.blobs.GetPublicURL(path)

	fv := &models.FinalVideo{
		ID:       uuid.New(),
		ChatID:   chat.ID,
		VideoURL: publicURL,
	}

	// Best-effort ordering: the artifact is already durable under a
	// deterministic path, so a failed row write must not undo it.
	if err := p.store.UpsertFinalVideo(ctx, fv); err != nil {
		log.Printf("[Pipeline] %v: final video for chat %s (artifact at %s)", ErrMetadataWrite, chat.ID, publicURL)
	}

	if err := p.store.UpdateChatStatus(ctx, chat.ID, models.ChatStatusDone); err != nil {
		return nil, err
	}

	log.Printf("[Pipeline] Chat %s done: %s", chat.ID, publicURL)
	return fv, nil
}

func (p *Pipeline) stitchFailed(ctx context.Context, chatID uuid.UUID, err error) error {
	p.failChat(ctx, chatID, err.Error())
	return err
}

// ---------------------------------------------------------------------------
// Full run
// ---------------------------------------------------------------------------

// Run drives a chat through the whole pipeline. Scene-stage failures are
// aggregated, never fatal: every healthy scene advances as far as it can.
// The final stitch runs only when every scene has a video and there are at
// least two — otherwise the chat stays videos_pending, never silently done.
func (p *Pipeline) Run(ctx context.Context, chatID uuid.UUID, force bool) error {
	if err := p.PlanChat(ctx, chatID); err != nil {
		return err
	}

	chat, err := p.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}

	scenes, err := p.store.GetChatScenes(ctx, chatID)
	if err != nil {
		return err
	}
	if len(scenes) == 0 {
		return fmt.Errorf("chat %s has no scenes after planning", chatID)
	}

	// Image fan-out
	if err := p.store.UpdateChatStatus(ctx, chatID, models.ChatStatusImagesPending); err != nil {
		return err
	}

	imageErrs := p.fanOut(ctx, scenes, func(ctx context.Context, scene *models.Scene) error {
		return p.GenerateSceneImage(ctx, chat, scene, force)
	})
	if n := len(imageErrs); n > 0 {
		log.Printf("[Pipeline] Chat %s: %d/%d scenes failed image synthesis", chatID, n, len(scenes))
	}

	// Video fan-out — fresh rows so each scene's recorded image_url is used
	scenes, err = p.store.GetChatScenes(ctx, chatID)
	if err != nil {
		return err
	}

	if err := p.store.UpdateChatStatus(ctx, chatID, models.ChatStatusVideosPending); err != nil {
		return err
	}

	videoErrs := p.fanOut(ctx, scenes, func(ctx context.Context, scene *models.Scene) error {
		if scene.ImageURL == nil {
			return nil // Image stage already failed this scene
		}
		return p.GenerateSceneVideo(ctx, chat, scene, force)
	})
	if n := len(videoErrs); n > 0 {
		log.Printf("[Pipeline] Chat %s: %d/%d scenes failed video synthesis", chatID, n, len(scenes))
	}

	// Stitch barrier
	allReady, err := p.store.AreAllScenesVideoReady(ctx, chatID)
	if err != nil {
		return err
	}

	if !allReady || len(scenes) < 2 {
		log.Printf("[Pipeline] Chat %s not stitchable yet (allReady=%v, scenes=%d), staying videos_pending", chatID, allReady, len(scenes))
		return nil
	}

	_, err = p.StitchChat(ctx, chat)
	return err
}

// fanOut runs fn for every scene with bounded concurrency. Goroutines always
// return nil so one scene's failure never cancels its siblings; the errors
// come back aggregated.
func (p *Pipeline) fanOut(ctx context.Context, scenes []models.Scene, fn func(ctx context.Context, scene *models.Scene) error) []error {
	var (
		mu   sync.Mutex
		errs []error
	)

	g := &errgroup.Group{}
	g.SetLimit(p.maxConcurrent)

	for i := range scenes {
		scene := &scenes[i]
		g.Go(func() error {
			if err := fn(ctx, scene); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("scene %d: %w", scene.SceneNumber, err))
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()
	return errs
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (p *Pipeline) failScene(ctx context.Context, sceneID uuid.UUID, cause error) {
	if err := p.store.UpdateSceneError(ctx, sceneID, cause.Error()); err != nil {
		log.Printf("[Pipeline] Failed to record scene %s error: %v", sceneID, err)
	}
}

func (p *Pipeline) failChat(ctx context.Context, chatID uuid.UUID, message string) {
	if err := p.store.UpdateChatError(ctx, chatID, message); err != nil {
		log.Printf("[Pipeline] Failed to record chat %s error: %v", chatID, err)
	}
}

func toJSONB(v interface{}) models.JSONB {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out models.JSONB
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
