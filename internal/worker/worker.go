package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/storyreel/backend/internal/db"
	"github.com/storyreel/backend/internal/pipeline"
	"github.com/storyreel/backend/internal/queue"
)

// Worker consumes pipeline jobs from the Redis queues and hands them to the
// orchestrator. Each queue gets its own set of consumer goroutines; a slow
// video poll on one queue never starves the others.
type Worker struct {
	db       *db.DB
	queue    *queue.Queue
	pipeline *pipeline.Pipeline
}

func New(database *db.DB, q *queue.Queue, p *pipeline.Pipeline) *Worker {
	return &Worker{
		db:       database,
		queue:    q,
		pipeline: p,
	}
}

// Start begins processing jobs from all queues. Blocks until ctx is done.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueRunChat, w.handleRunChat)
		go w.processQueue(ctx, queue.QueueSceneImage, w.handleSceneImage)
		go w.processQueue(ctx, queue.QueueSceneVideo, w.handleSceneVideo)
		go w.processQueue(ctx, queue.QueueStitchChat, w.handleStitchChat)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s, chat: %s)", job.ID, job.Type, job.ChatID)

			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
			} else {
				log.Printf("Job %s completed", job.ID)
			}
		}
	}
}

func (w *Worker) handleRunChat(ctx context.Context, job *queue.Job) error {
	return w.pipeline.Run(ctx, job.ChatID, job.Force)
}

func (w *Worker) handleSceneImage(ctx context.Context, job *queue.Job) error {
	if job.SceneID == nil {
		return fmt.Errorf("scene_image job %s has no scene id", job.ID)
	}

	chat, err := w.db.GetChat(ctx, job.ChatID)
	if err != nil {
		return err
	}

	scene, err := w.db.GetScene(ctx, *job.SceneID)
	if err != nil {
		return err
	}

	return w.pipeline.GenerateSceneImage(ctx, chat, scene, job.Force)
}

func (w *Worker) handleSceneVideo(ctx context.Context, job *queue.Job) error {
	if job.SceneID == nil {
		return fmt.Errorf("scene_video job %s has no scene id", job.ID)
	}

	chat, err := w.db.GetChat(ctx, job.ChatID)
	if err != nil {
		return err
	}

	scene, err := w.db.GetScene(ctx, *job.SceneID)
	if err != nil {
		return err
	}

	return w.pipeline.GenerateSceneVideo(ctx, chat, scene, job.Force)
}

func (w *Worker) handleStitchChat(ctx context.Context, job *queue.Job) error {
	chat, err := w.db.GetChat(ctx, job.ChatID)
	if err != nil {
		return err
	}

	_, err = w.pipeline.StitchChat(ctx, chat)
	return err
}
