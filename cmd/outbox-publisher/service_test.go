package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/pkg/config"
	"github.com/dariomatias/vendora-backend/pkg/db/models"
	"github.com/dariomatias/vendora-backend/pkg/enums"
	"github.com/dariomatias/vendora-backend/pkg/logger"
)

type stubOutboxRepo struct {
	events    []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []uuid.UUID
}

func (s *stubOutboxRepo) FetchUnpublished(_ int) ([]models.OutboxEvent, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.events, nil
}

func (s *stubOutboxRepo) MarkPublished(id uuid.UUID) error {
	s.published = append(s.published, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(id uuid.UUID, _ error) error {
	s.failed = append(s.failed, id)
	return nil
}

type stubResult struct {
	err error
}

func (s stubResult) Get(_ context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "msg-1", nil
}

type stubPublisher struct {
	messages []*gcppubsub.Message
	errs     map[string]error
}

func (s *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	s.messages = append(s.messages, msg)
	if err, ok := s.errs[msg.Attributes["event_id"]]; ok {
		return stubResult{err: err}
	}
	return stubResult{}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newPublisherService(t *testing.T, repo *stubOutboxRepo, pub *stubPublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     testLogger(),
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func outboxEvent(attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  attempts,
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	t.Parallel()

	event := outboxEvent(0)
	repo := &stubOutboxRepo{events: []models.OutboxEvent{event}}
	pub := &stubPublisher{}
	svc := newPublisherService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to be processed")
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	if got := pub.messages[0].Attributes["event_type"]; got != string(enums.EventOrderCreated) {
		t.Fatalf("unexpected event_type attribute %q", got)
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatalf("expected event marked published, got %v", repo.published)
	}
}

func TestProcessBatchMarksFailureAndContinues(t *testing.T) {
	t.Parallel()

	broken := outboxEvent(2)
	healthy := outboxEvent(0)
	repo := &stubOutboxRepo{events: []models.OutboxEvent{broken, healthy}}
	pub := &stubPublisher{errs: map[string]error{broken.ID.String(): errors.New("topic unavailable")}}
	svc := newPublisherService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to be processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != broken.ID {
		t.Fatalf("expected broken event marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != healthy.ID {
		t.Fatalf("expected healthy event published, got %v", repo.published)
	}
}

func TestProcessBatchSkipsExhaustedEvents(t *testing.T) {
	t.Parallel()

	exhausted := outboxEvent(10)
	repo := &stubOutboxRepo{events: []models.OutboxEvent{exhausted}}
	pub := &stubPublisher{}
	svc := newPublisherService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatalf("exhausted rows should not count as progress")
	}
	if len(pub.messages) != 0 {
		t.Fatalf("exhausted rows should not be republished")
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{}
	svc := newPublisherService(t, repo, &stubPublisher{})

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatalf("empty batch should report no progress")
	}
}
