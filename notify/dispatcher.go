package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sociosflow/logging"
)

const (
	defaultTimeout = 15 * time.Second
	claimTTL       = 24 * time.Hour
	claimPrefix    = "postulaciones:notify:"
)

// Dispatcher runs best-effort email tasks. Submit never blocks on delivery
// and never reports a delivery error to the caller; failures are logged.
// With a Redis client each key is delivered at most once across replicas.
type Dispatcher struct {
	mailer  Mailer
	redis   *redis.Client
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(mailer Mailer, client *redis.Client, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger = logging.Resolve(logger)
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	return &Dispatcher{
		mailer:  mailer,
		redis:   client,
		timeout: timeout,
		logger:  logger,
	}
}

// Submit schedules email for delivery under key and returns the task id.
// The task outlives ctx's cancellation but not the dispatcher timeout.
func (d *Dispatcher) Submit(ctx context.Context, key string, email Email) string {
	taskID := uuid.NewString()
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		d.run(taskCtx, taskID, key, email)
	}()
	return taskID
}

// Wait blocks until submitted tasks finish. Used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, taskID, key string, email Email) {
	log := d.logger.With("task_id", taskID, "key", key)

	claimed, err := d.claim(ctx, key, taskID)
	if err != nil {
		log.Warn("notification dropped", "event", "notification_claim_failed", "error", err.Error())
		return
	}
	if !claimed {
		log.Info("notification already delivered", "event", "notification_duplicate")
		return
	}

	if err := d.mailer.Send(ctx, email); err != nil {
		log.Error("notification failed", "event", "notification_failed", "to", email.To, "error", err.Error())
		return
	}
	log.Info("notification sent", "event", "notification_sent", "to", email.To)
}

func (d *Dispatcher) claim(ctx context.Context, key, taskID string) (bool, error) {
	if d.redis == nil || key == "" {
		return true, nil
	}
	return d.redis.SetNX(ctx, claimPrefix+key, taskID, claimTTL).Result()
}
