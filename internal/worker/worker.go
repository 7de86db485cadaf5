package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/tasks"
	"go.uber.org/zap"
)

// Handlers are the periodic jobs the worker runs.
type Handlers struct {
	QuotaReset    *tasks.QuotaResetHandler
	LicenseExpire *tasks.LicenseExpireHandler
}

func NewServeMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeQuotaReset, h.QuotaReset.ProcessTask)
	mux.HandleFunc(tasks.TypeLicenseExpire, h.LicenseExpire.ProcessTask)
	return mux
}

// RunWorkers starts the asynq server and scheduler and blocks until ctx is
// done, then shuts both down.
func RunWorkers(ctx context.Context, cfg *config.Config, h Handlers, logger *zap.Logger) error {
	redisConnOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	concurrency := cfg.Scheduler.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	srv := asynq.NewServer(
		redisConnOpts,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Named("AsynqServerErrorHandler").Error("Asynq task processing failed",
					zap.String("task_type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err),
				)
			}),
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqServer")),
		},
	)

	logger.Info("Starting Asynq Server...")
	if err := srv.Start(NewServeMux(h)); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	scheduler := asynq.NewScheduler(
		redisConnOpts,
		&asynq.SchedulerOpts{
			Location: cfg.Gate.Location(),
			Logger:   NewAsynqLoggerAdapter(logger.Named("AsynqScheduler")),
		},
	)

	if err := register(scheduler, cfg.Scheduler.ResetSpec, tasks.NewQuotaResetTask, logger, asynq.Queue("critical")); err != nil {
		srv.Shutdown()
		return err
	}
	if err := register(scheduler, cfg.Scheduler.ExpireSpec, tasks.NewLicenseExpireTask, logger); err != nil {
		srv.Shutdown()
		return err
	}

	logger.Info("Starting Asynq Scheduler...")
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("asynq scheduler error: %w", err)
	}

	<-ctx.Done()

	logger.Info("Shutting down Asynq Scheduler...")
	scheduler.Shutdown()
	logger.Info("Shutting down Asynq Server...")
	srv.Shutdown()
	logger.Info("Asynq workers stopped.")
	return nil
}

func register(scheduler *asynq.Scheduler, schedule string, newTask func(...asynq.Option) (*asynq.Task, error), logger *zap.Logger, opts ...asynq.Option) error {
	if schedule == "" {
		return nil
	}
	task, err := newTask(opts...)
	if err != nil {
		return fmt.Errorf("scheduler task creation error: %w", err)
	}
	entryID, err := scheduler.Register(schedule, task)
	if err != nil {
		return fmt.Errorf("scheduler registration error for %s: %w", task.Type(), err)
	}
	logger.Info("Registered periodic task", zap.String("task", task.Type()), zap.String("entry_id", entryID), zap.String("schedule", schedule))
	return nil
}

type asynqLoggerAdapter struct {
	logger *zap.SugaredLogger
}

func NewAsynqLoggerAdapter(logger *zap.Logger) *asynqLoggerAdapter {
	return &asynqLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *asynqLoggerAdapter) Debug(args ...interface{}) { l.logger.Debug(args...) }
func (l *asynqLoggerAdapter) Info(args ...interface{})  { l.logger.Info(args...) }
func (l *asynqLoggerAdapter) Warn(args ...interface{})  { l.logger.Warn(args...) }
func (l *asynqLoggerAdapter) Error(args ...interface{}) { l.logger.Error(args...) }
func (l *asynqLoggerAdapter) Fatal(args ...interface{}) { l.logger.Fatal(args...) }
