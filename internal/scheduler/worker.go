package scheduler

import (
	"context"
	"fmt"

	"salesops_backend/internal/saga/repository"
	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runs   *repository.Repository
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		runs:   repository.New(pool),
		log:    log,
	}

	mux.HandleFunc(TaskSagaRunCleanup, w.handleRunCleanup)

	return w, nil
}

func (w *Worker) handleRunCleanup(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRunCleanupPayload(task)
	if err != nil {
		return err
	}

	deleted, err := w.runs.DeleteFinishedBefore(ctx, payload.Cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		w.log.Info("saga run cleanup deleted finished runs", "deleted", deleted, "cutoff", payload.Cutoff)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
