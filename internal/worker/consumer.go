package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gandretiraghu/gptr-road-safety/internal/config"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

const (
	consumerTag        = "gptr-submission-consumer"
	connectRetryDelay  = 5 * time.Second
	maxConnectRetries  = 10
	jobTimeout         = 90 * time.Second
	publishTimeout     = 30 * time.Second
	defaultConcurrency = 10
)

var errConnectionLost = errors.New("rabbitmq connection lost")

// Submitter runs one submission through the engine.
type Submitter interface {
	Submit(ctx context.Context, sub models.Submission) (models.Outcome, error)
}

// publisher is the part of *amqp.Channel used to send results.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// JobConsumer consumes submission jobs and publishes their outcomes.
type JobConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu        sync.Mutex
	publisher publisher

	url             string
	submissionQueue string
	resultQueue     string
	prefetch        int

	submissions Submitter
	logger      *slog.Logger
	now         func() time.Time

	done                chan struct{}
	doneOnce            sync.Once
	stopping            atomic.Bool
	notifyConnClose     chan *amqp.Error
	processingSemaphore chan struct{}
	wg                  sync.WaitGroup
}

func newJobConsumer(cfg *config.Config, svc Submitter, logger *slog.Logger) *JobConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Queue.Workers
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	prefetch := cfg.Queue.Prefetch
	if prefetch <= 0 {
		prefetch = concurrency
	}
	return &JobConsumer{
		url:                 cfg.Queue.RabbitMQURL,
		submissionQueue:     cfg.Queue.SubmissionQueue,
		resultQueue:         cfg.Queue.ResultQueue,
		prefetch:            prefetch,
		submissions:         svc,
		logger:              logger.With("component", "JobConsumer"),
		now:                 time.Now,
		done:                make(chan struct{}),
		processingSemaphore: make(chan struct{}, concurrency),
	}
}

// NewJobConsumer connects to RabbitMQ and declares both queues.
func NewJobConsumer(cfg *config.Config, svc Submitter, logger *slog.Logger) (*JobConsumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if svc == nil {
		return nil, fmt.Errorf("submission service cannot be nil")
	}
	jc := newJobConsumer(cfg, svc, logger)
	if err := jc.connect(); err != nil {
		jc.logger.Warn("initial connection failed, retrying once", "error", err, "retry_in", connectRetryDelay)
		time.Sleep(connectRetryDelay)
		if err = jc.connect(); err != nil {
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
	}
	return jc, nil
}

func (jc *JobConsumer) connect() error {
	conn, err := amqp.Dial(jc.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	for _, q := range []string{jc.submissionQueue, jc.resultQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	if err := ch.Qos(jc.prefetch, 0, false); err != nil {
		jc.logger.Warn("failed to set QoS", "error", err)
	}

	jc.mu.Lock()
	jc.conn, jc.channel, jc.publisher = conn, ch, ch
	jc.mu.Unlock()
	jc.notifyConnClose = conn.NotifyClose(make(chan *amqp.Error, 1))
	jc.logger.Info("connected", "submission_queue", jc.submissionQueue, "result_queue", jc.resultQueue, "prefetch", jc.prefetch)
	return nil
}

// StartConsuming blocks until ctx is cancelled, Stop is called or the
// connection cannot be re-established.
func (jc *JobConsumer) StartConsuming(ctx context.Context) error {
	for {
		deliveries, err := jc.channel.Consume(jc.submissionQueue, consumerTag, false, false, false, false, nil)
		if err == nil {
			jc.logger.Info("waiting for jobs", "queue", jc.submissionQueue)
			err = jc.drain(ctx, deliveries)
			if err == nil {
				return nil
			}
		}
		jc.logger.Warn("consumer interrupted", "error", err)
		if err := jc.reconnect(ctx); err != nil {
			return err
		}
	}
}

func (jc *JobConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			jc.Stop()
			return nil
		case <-jc.done:
			return nil
		case amqpErr := <-jc.notifyConnClose:
			if jc.stopping.Load() {
				return nil
			}
			return fmt.Errorf("%w: %v", errConnectionLost, amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				if jc.stopping.Load() {
					return nil
				}
				return errConnectionLost
			}
			select {
			case jc.processingSemaphore <- struct{}{}:
			case <-ctx.Done():
				// unacked deliveries go back to the queue when the channel closes
				jc.Stop()
				return nil
			}
			jc.wg.Add(1)
			go func() {
				defer func() {
					<-jc.processingSemaphore
					jc.wg.Done()
				}()
				jc.processMessage(ctx, d)
			}()
		}
	}
}

func (jc *JobConsumer) reconnect(ctx context.Context) error {
	if jc.channel != nil {
		jc.channel.Close()
	}
	if jc.conn != nil {
		jc.conn.Close()
	}
	for i := 0; i < maxConnectRetries; i++ {
		if jc.stopping.Load() {
			return errors.New("reconnect aborted: consumer stopping")
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("reconnect aborted: %w", err)
		}
		jc.logger.Info("reconnect attempt", "attempt", i+1)
		err := jc.connect()
		if err == nil {
			return nil
		}
		jc.logger.Warn("reconnect failed", "error", err, "retry_in", connectRetryDelay)
		select {
		case <-time.After(connectRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		case <-jc.done:
			return errors.New("reconnect aborted: consumer stopping")
		}
	}
	return fmt.Errorf("failed to reconnect after %d attempts", maxConnectRetries)
}

// processMessage runs one job. Unparseable jobs are dropped with a nack.
// Every parsed job is acked once its result is published, including
// transient failures: retrying is the producer's decision.
func (jc *JobConsumer) processMessage(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			jc.logger.Error("panic while processing job", "delivery_tag", d.DeliveryTag, "panic", r)
			if err := d.Nack(false, false); err != nil {
				jc.logger.Error("nack after panic failed", "delivery_tag", d.DeliveryTag, "error", err)
			}
		}
	}()

	var job models.SubmissionJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.JobID == "" {
		if err == nil {
			err = errors.New("missing jobId")
		}
		jc.logger.Warn("dropping unparseable job", "delivery_tag", d.DeliveryTag, "message_id", d.MessageId, "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			jc.logger.Error("nack failed", "delivery_tag", d.DeliveryTag, "error", nackErr)
		}
		return
	}
	if job.Submission.ReportID == "" {
		// redelivery of the same job then replays instead of filing twice
		job.Submission.ReportID = job.JobID
	}

	// in-flight jobs finish even when shutdown has begun
	serviceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
	out, err := jc.submissions.Submit(serviceCtx, job.Submission)
	cancel()

	result := models.SubmissionResult{JobID: job.JobID, Outcome: out, ProcessedAt: jc.now().UTC()}
	if err != nil {
		result.Outcome = service.OutcomeForError(err)
		result.Error = err.Error()
	}
	jc.logger.Info("job processed", "job_id", job.JobID, "status", result.Outcome.Status, "reason", result.Outcome.Reason)

	publishCtx, publishCancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer publishCancel()
	if err := jc.PublishResult(publishCtx, result); err != nil {
		jc.logger.Error("failed to publish result, requeueing job", "job_id", job.JobID, "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			jc.logger.Error("nack failed", "delivery_tag", d.DeliveryTag, "error", nackErr)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		jc.logger.Error("ack failed", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// PublishResult sends a persistent result message keyed by job id.
func (jc *JobConsumer) PublishResult(ctx context.Context, result models.SubmissionResult) error {
	jc.mu.Lock()
	pub := jc.publisher
	jc.mu.Unlock()
	if pub == nil {
		return errConnectionLost
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	err = pub.PublishWithContext(ctx, "", jc.resultQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    result.ProcessedAt,
		MessageId:    result.JobID,
	})
	if err != nil {
		return fmt.Errorf("publish result %s: %w", result.JobID, err)
	}
	return nil
}

// Stop signals the consume loop to exit. Safe to call more than once.
func (jc *JobConsumer) Stop() {
	jc.stopping.Store(true)
	jc.doneOnce.Do(func() { close(jc.done) })
}

// Close waits for in-flight jobs and releases the connection.
func (jc *JobConsumer) Close() {
	jc.wg.Wait()
	if jc.channel != nil {
		if err := jc.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			jc.logger.Warn("error closing channel", "error", err)
		}
		jc.channel = nil
	}
	if jc.conn != nil {
		if err := jc.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			jc.logger.Warn("error closing connection", "error", err)
		}
		jc.conn = nil
	}
	jc.logger.Info("rabbitmq resources closed")
}
