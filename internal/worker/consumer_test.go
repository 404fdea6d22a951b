package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

type ackRecord struct {
	acked   bool
	nacked  bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records map[uint64]*ackRecord
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{records: map[uint64]*ackRecord{}}
}

func (a *fakeAcknowledger) record(tag uint64) *ackRecord {
	if a.records[tag] == nil {
		a.records[tag] = &ackRecord{}
	}
	return a.records[tag]
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record(tag).acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.record(tag)
	r.nacked = true
	r.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) get(tag uint64) ackRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r := a.records[tag]; r != nil {
		return *r
	}
	return ackRecord{}
}

type fakeIngest struct {
	deliveries chan amqp.Delivery
	prefetch   int
	tag        string
}

func (f *fakeIngest) Qos(prefetchCount int) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeIngest) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	f.tag = consumerTag
	return f.deliveries, nil
}

func newTestWorker(q *Queue, ingest IngestSource) *Worker {
	return NewWorker(&Config{
		Logger:    discardLogger(),
		Queue:     q,
		Ingest:    ingest,
		MaxImages: 2,
	})
}

func TestHandleDelivery(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		closeQueue  bool
		wantAck     bool
		wantRequeue bool
		wantQueued  int
		wantImages  int
	}{
		{
			name:       "valid message",
			body:       `{"images":["/staging/a.jpg","/staging/b.jpg"],"caption":"hello"}`,
			wantAck:    true,
			wantQueued: 1,
			wantImages: 2,
		},
		{
			name:       "extra images truncated",
			body:       `{"images":["1.jpg","2.jpg","3.jpg"],"caption":"hello"}`,
			wantAck:    true,
			wantQueued: 1,
			wantImages: 2,
		},
		{
			name: "malformed json",
			body: `{"images":`,
		},
		{
			name: "no images",
			body: `{"images":[],"caption":"hello"}`,
		},
		{
			name:        "queue closed",
			body:        `{"images":["a.jpg"],"caption":"hello"}`,
			closeQueue:  true,
			wantRequeue: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(QueueConfig{}, newFakePublisher(), nil, nil, discardLogger())
			if tt.closeQueue {
				q.Close()
			}
			w := newTestWorker(q, nil)
			acker := newFakeAcknowledger()

			w.handleDelivery(context.Background(), amqp.Delivery{
				Acknowledger: acker,
				DeliveryTag:  7,
				Body:         []byte(tt.body),
			})

			rec := acker.get(7)
			assert.Equal(t, tt.wantAck, rec.acked)
			assert.Equal(t, !tt.wantAck, rec.nacked)
			assert.Equal(t, tt.wantRequeue, rec.requeue)
			assert.Equal(t, tt.wantQueued, q.Status().Length)

			if tt.wantQueued > 0 {
				job := q.backlog[0]
				assert.Len(t, job.Images, tt.wantImages)
				assert.Equal(t, "hello", job.Caption)
			}
		})
	}
}

func TestWorker_StartConsumesAndStops(t *testing.T) {
	pub := newFakePublisher()
	q := NewQueue(QueueConfig{}, pub, nil, nil, discardLogger())
	ingest := &fakeIngest{deliveries: make(chan amqp.Delivery, 1)}
	w := newTestWorker(q, ingest)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	acker := newFakeAcknowledger()
	ingest.deliveries <- amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  1,
		Body:         []byte(`{"images":["a.jpg"],"caption":"from broker"}`),
	}

	waitCalls(t, pub, 1)
	require.Eventually(t, func() bool { return acker.get(1).acked }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Equal(t, 1, ingest.prefetch)
	assert.Equal(t, "relay-poster", ingest.tag)
}

func TestWorker_StopDrains(t *testing.T) {
	q := NewQueue(QueueConfig{}, newFakePublisher(), nil, nil, discardLogger())
	w := newTestWorker(q, nil)

	require.NoError(t, q.Enqueue(context.Background(), testJob("a")))
	require.NoError(t, q.Enqueue(context.Background(), testJob("b")))

	assert.Equal(t, 2, w.Stop(context.Background()))
	assert.ErrorIs(t, q.Enqueue(context.Background(), testJob("c")), domain.ErrQueueClosed)
}
