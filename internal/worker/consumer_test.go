package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gandretiraghu/gptr-road-safety/internal/config"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
	"github.com/gandretiraghu/gptr-road-safety/internal/logging"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	got  []models.Submission
	out  models.Outcome
	err  error
	boom bool
}

func (f *fakeSubmitter) Submit(_ context.Context, sub models.Submission) (models.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boom {
		panic("engine exploded")
	}
	f.got = append(f.got, sub)
	return f.out, f.err
}

type fakePublisher struct {
	mu   sync.Mutex
	key  string
	msgs []amqp.Publishing
	err  error
}

func (p *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.key = key
	p.msgs = append(p.msgs, msg)
	return nil
}

// fakeAck records how a delivery was settled.
type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAck) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *fakeAck) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

var fixedNow = time.Date(2026, 10, 15, 6, 30, 0, 0, time.UTC)

func newTestConsumer(sub *fakeSubmitter, pub *fakePublisher) *JobConsumer {
	jc := newJobConsumer(config.Default(), sub, logging.Discard())
	jc.publisher = pub
	jc.now = func() time.Time { return fixedNow }
	return jc
}

func delivery(t *testing.T, ack *fakeAck, body any) amqp.Delivery {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, Body: raw}
}

func job(id string) models.SubmissionJob {
	return models.SubmissionJob{JobID: id, Submission: models.Submission{
		DeviceID:        "device-a",
		Kind:            models.KindHazard,
		ClaimedLocation: models.GeoLocation{Lat: 17.385, Lng: 78.4867},
		Evidence:        models.Evidence{ImageRef: "s3://gptr/a.jpg"},
	}}
}

func publishedResult(t *testing.T, pub *fakePublisher) (amqp.Publishing, models.SubmissionResult) {
	t.Helper()
	require.Len(t, pub.msgs, 1)
	var res models.SubmissionResult
	require.NoError(t, json.Unmarshal(pub.msgs[0].Body, &res))
	return pub.msgs[0], res
}

func TestProcessMessagePublishesOutcomeAndAcks(t *testing.T) {
	report := models.Report{ID: "job-1", Kind: models.KindHazard}
	sub := &fakeSubmitter{out: models.Outcome{Status: models.OutcomeAdmitted, Report: &report}}
	pub := &fakePublisher{}
	ack := &fakeAck{}

	newTestConsumer(sub, pub).processMessage(context.Background(), delivery(t, ack, job("job-1")))

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	require.Len(t, sub.got, 1)
	assert.Equal(t, "job-1", sub.got[0].ReportID, "job id doubles as the idempotency key")

	msg, res := publishedResult(t, pub)
	assert.Equal(t, "result_queue", pub.key)
	assert.Equal(t, "job-1", msg.MessageId)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, models.OutcomeAdmitted, res.Outcome.Status)
	assert.True(t, fixedNow.Equal(res.ProcessedAt))
	assert.Empty(t, res.Error)
}

func TestProcessMessageKeepsClientReportID(t *testing.T) {
	sub := &fakeSubmitter{out: models.Outcome{Status: models.OutcomeAdmitted}}
	j := job("job-2")
	j.Submission.ReportID = "client-chosen"

	newTestConsumer(sub, &fakePublisher{}).processMessage(context.Background(), delivery(t, &fakeAck{}, j))
	require.Len(t, sub.got, 1)
	assert.Equal(t, "client-chosen", sub.got[0].ReportID)
}

func TestProcessMessageRejectionIsAcked(t *testing.T) {
	sub := &fakeSubmitter{out: models.Outcome{Status: models.OutcomeRejected, Reason: models.ReasonHazardAlreadyNearby}}
	pub := &fakePublisher{}
	ack := &fakeAck{}

	newTestConsumer(sub, pub).processMessage(context.Background(), delivery(t, ack, job("job-3")))

	assert.True(t, ack.acked)
	_, res := publishedResult(t, pub)
	assert.Equal(t, models.ReasonHazardAlreadyNearby, res.Outcome.Reason)
}

func TestProcessMessageTransientFailureIsReportedNotRetried(t *testing.T) {
	sub := &fakeSubmitter{err: fmt.Errorf("triage: %w", service.ErrAnalysisFailed)}
	pub := &fakePublisher{}
	ack := &fakeAck{}

	newTestConsumer(sub, pub).processMessage(context.Background(), delivery(t, ack, job("job-4")))

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	_, res := publishedResult(t, pub)
	assert.Equal(t, models.OutcomeFailed, res.Outcome.Status)
	assert.Equal(t, models.ReasonAnalysisFailed, res.Outcome.Reason)
	assert.True(t, res.Outcome.Retryable)
	assert.Contains(t, res.Error, "analysis failed")
}

func TestProcessMessageUnparseableIsDropped(t *testing.T) {
	for name, body := range map[string]any{
		"not json":   "{{{",
		"no job id":  models.SubmissionJob{Submission: job("x").Submission},
		"wrong type": `{"jobId": 12}`,
	} {
		t.Run(name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			pub := &fakePublisher{}
			ack := &fakeAck{}

			newTestConsumer(sub, pub).processMessage(context.Background(), delivery(t, ack, body))

			assert.True(t, ack.nacked)
			assert.False(t, ack.requeue)
			assert.False(t, ack.acked)
			assert.Empty(t, sub.got)
			assert.Empty(t, pub.msgs)
		})
	}
}

func TestProcessMessagePublishFailureRequeues(t *testing.T) {
	sub := &fakeSubmitter{out: models.Outcome{Status: models.OutcomeAdmitted}}
	pub := &fakePublisher{err: errors.New("channel closed")}
	ack := &fakeAck{}

	newTestConsumer(sub, pub).processMessage(context.Background(), delivery(t, ack, job("job-5")))

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
	assert.False(t, ack.acked)
}

func TestProcessMessagePanicIsNacked(t *testing.T) {
	ack := &fakeAck{}
	newTestConsumer(&fakeSubmitter{boom: true}, &fakePublisher{}).processMessage(context.Background(), delivery(t, ack, job("job-6")))
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestPublishResultWithoutChannel(t *testing.T) {
	jc := newJobConsumer(config.Default(), &fakeSubmitter{}, logging.Discard())
	err := jc.PublishResult(context.Background(), models.SubmissionResult{JobID: "j"})
	assert.ErrorIs(t, err, errConnectionLost)
}

func TestDrainDispatchesEveryDelivery(t *testing.T) {
	sub := &fakeSubmitter{out: models.Outcome{Status: models.OutcomeAdmitted}}
	pub := &fakePublisher{}
	jc := newTestConsumer(sub, pub)

	deliveries := make(chan amqp.Delivery, 3)
	acks := make([]*fakeAck, 3)
	for i := range acks {
		acks[i] = &fakeAck{}
		deliveries <- delivery(t, acks[i], job(fmt.Sprintf("job-%d", i)))
	}
	close(deliveries)

	// the broker closing the stream without Stop is a lost connection
	err := jc.drain(context.Background(), deliveries)
	assert.ErrorIs(t, err, errConnectionLost)
	jc.Close()

	assert.Len(t, sub.got, 3)
	assert.Len(t, pub.msgs, 3)
	for i, a := range acks {
		assert.True(t, a.acked, "delivery %d", i)
	}
}

func TestDrainAfterStopIsClean(t *testing.T) {
	jc := newTestConsumer(&fakeSubmitter{}, &fakePublisher{})
	jc.Stop()
	deliveries := make(chan amqp.Delivery)
	close(deliveries)
	require.NoError(t, jc.drain(context.Background(), deliveries))
}

func TestDrainReportsLostConnection(t *testing.T) {
	jc := newTestConsumer(&fakeSubmitter{}, &fakePublisher{})
	deliveries := make(chan amqp.Delivery)
	close(deliveries)
	err := jc.drain(context.Background(), deliveries)
	assert.ErrorIs(t, err, errConnectionLost)
}

func TestDrainStopsOnContext(t *testing.T) {
	jc := newTestConsumer(&fakeSubmitter{}, &fakePublisher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, jc.drain(ctx, make(chan amqp.Delivery)))
	assert.True(t, jc.stopping.Load())

	jc.Stop() // idempotent
}
