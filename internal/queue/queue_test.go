package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap"
)

func TestLocalQueue_SerializesPerDocument(t *testing.T) {
	q := NewLocalQueue(3, 16, WithLogger(zap.NewNop()))

	var mu sync.Mutex
	active := map[int64]int{}
	order := map[int64][]string{}
	overlap := false
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		active[job.DocumentID]++
		if active[job.DocumentID] > 1 {
			overlap = true
		}
		order[job.DocumentID] = append(order[job.DocumentID], job.Reason)
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active[job.DocumentID]--
		mu.Unlock()
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- q.Run(context.Background(), handler) }()

	ctx := context.Background()
	for _, reason := range []string{"a", "b", "c", "d"} {
		for doc := int64(1); doc <= 5; doc++ {
			if err := q.Publish(ctx, Job{DocumentID: doc, Reason: reason}); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	if overlap {
		t.Error("jobs for one document ran concurrently")
	}
	for doc := int64(1); doc <= 5; doc++ {
		got := order[doc]
		if len(got) != 4 || got[0] != "a" || got[3] != "d" {
			t.Errorf("document %d handled in order %v", doc, got)
		}
	}
}

func TestLocalQueue_PublishAfterClose(t *testing.T) {
	q := NewLocalQueue(1, 1)
	_ = q.Close()
	if err := q.Publish(context.Background(), Job{DocumentID: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestLocalQueue_PublishHonorsContext(t *testing.T) {
	q := NewLocalQueue(1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Job{DocumentID: 1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded with no running workers, got %v", err)
	}
}

func TestLocalQueue_HandlerPanicDoesNotStopWorker(t *testing.T) {
	q := NewLocalQueue(1, 4)
	var handled []int64
	done := make(chan error, 1)
	go func() {
		done <- q.Run(context.Background(), func(ctx context.Context, job Job) error {
			if job.DocumentID == 1 {
				panic("boom")
			}
			handled = append(handled, job.DocumentID)
			return nil
		})
	}()
	_ = q.Publish(context.Background(), Job{DocumentID: 1})
	_ = q.Publish(context.Background(), Job{DocumentID: 2})
	_ = q.Close()
	<-done
	if len(handled) != 1 || handled[0] != 2 {
		t.Errorf("handled = %v", handled)
	}
}

func TestLocalQueue_Shard(t *testing.T) {
	q := NewLocalQueue(4, 0)
	tests := []struct {
		id   int64
		want int
	}{{0, 0}, {5, 1}, {8, 0}, {-3, 1}}
	for _, tt := range tests {
		if got := q.shard(tt.id); got != tt.want {
			t.Errorf("shard(%d) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var job Job
		if err := json.Unmarshal(val, &job); err != nil {
			return err
		}
		if job.DocumentID != 12 || job.TenantID != 3 || job.Reason != ReasonUpload {
			return errors.New("unexpected job payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaPublisher(producer, "kotae.documents")
	ctx := context.Background()
	if err := p.Publish(ctx, Job{DocumentID: 12, TenantID: 3, Reason: ReasonUpload}); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(ctx, Job{DocumentID: 13}); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("expected broker error, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewKafka_Validation(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}); err == nil {
		t.Error("publisher without brokers should fail")
	}
	if _, err := NewKafkaConsumer(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil); err == nil {
		t.Error("consumer without group id should fail")
	}
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type fakeSession struct {
	sarama.ConsumerGroupSession
	marked []int64
}

func (s *fakeSession) Context() context.Context { return context.Background() }
func (s *fakeSession) MarkMessage(m *sarama.ConsumerMessage, metadata string) {
	s.marked = append(s.marked, m.Offset)
}

func TestGroupHandler_MarksAfterSuccess(t *testing.T) {
	claim := fakeClaim{messages: make(chan *sarama.ConsumerMessage, 4)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"document_id":1}`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte(`{"document_id":2}`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Value: []byte(`not json`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 4, Value: []byte(`{"document_id":4}`)}
	close(claim.messages)

	var seen []int64
	h := &groupHandler{logger: zap.NewNop(), h: func(ctx context.Context, job Job) error {
		seen = append(seen, job.DocumentID)
		if job.DocumentID == 2 {
			return errors.New("extraction failed")
		}
		return nil
	}}
	sess := &fakeSession{}
	if err := h.ConsumeClaim(sess, claim); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 3 {
		t.Errorf("handler saw %v", seen)
	}
	want := []int64{1, 3, 4}
	if len(sess.marked) != len(want) {
		t.Fatalf("marked offsets %v, want %v", sess.marked, want)
	}
	for i := range want {
		if sess.marked[i] != want[i] {
			t.Errorf("marked offsets %v, want %v", sess.marked, want)
		}
	}
}

func TestDecodeJob(t *testing.T) {
	if _, err := decodeJob([]byte(`{"tenant_id":1}`)); err == nil {
		t.Error("job without document id should be rejected")
	}
	job, err := decodeJob([]byte(`{"document_id":9,"tenant_id":2,"reason":"changed"}`))
	if err != nil || job.DocumentID != 9 || job.Reason != ReasonChanged {
		t.Errorf("job = %+v, err = %v", job, err)
	}
}
