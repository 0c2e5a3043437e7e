package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1700000000000-0")
	}
	return cmd
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func productEvent(aggregateID string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "affiliate_product",
		AggregateID:   aggregateID,
		EventType:     "PRODUCT_SCRAPED",
		Payload:       json.RawMessage(`{"platform":"sephora","name":"Velvet Matte Lipstick"}`),
		TargetStream:  DefaultTargetStream,
		CreatedAt:     time.Now(),
	}
}

func TestRelay_Flush(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("publishes and marks processed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, logger, RelayConfig{BatchSize: 10})

		events := []*OutboxEvent{productEvent("p-1"), productEvent("p-2")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		for _, event := range events {
			event := event
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				values := args.Values.(map[string]interface{})
				return args.Stream == DefaultTargetStream &&
					values["aggregate_id"] == event.AggregateID &&
					values["event_type"] == "PRODUCT_SCRAPED"
			})).Return(nil)
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		published, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, published)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("redis failure marks event failed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, logger, RelayConfig{BatchSize: 10})

		event := productEvent("p-3")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("connection refused"))
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

		published, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, published)

		mockOutbox.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("invalid payload is not published", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, logger, RelayConfig{BatchSize: 10})

		event := productEvent("p-4")
		event.Payload = json.RawMessage(`{not json`)
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

		_, err := relay.Flush(ctx)
		require.NoError(t, err)

		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("outbox query failure", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, new(MockRedisClient), logger, RelayConfig{BatchSize: 10})

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("db down"))

		_, err := relay.Flush(ctx)
		assert.Error(t, err)
	})
}

func TestRelay_Drain(t *testing.T) {
	ctx := context.Background()

	t.Run("flushes until the outbox is empty", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, slog.Default(), RelayConfig{BatchSize: 2})

		first := []*OutboxEvent{productEvent("p-1"), productEvent("p-2")}
		second := []*OutboxEvent{productEvent("p-3")}
		mockOutbox.On("GetPending", ctx, 2).Return(first, nil).Once()
		mockOutbox.On("GetPending", ctx, 2).Return(second, nil).Once()
		mockOutbox.On("GetPending", ctx, 2).Return([]*OutboxEvent{}, nil).Once()
		mockRedis.On("XAdd", ctx, mock.Anything).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, mock.Anything).Return(nil)

		published, err := relay.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, published)
		mockOutbox.AssertNumberOfCalls(t, "GetPending", 3)
		mockRedis.AssertNumberOfCalls(t, "XAdd", 3)
	})

	t.Run("stops on error and keeps the count", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, slog.Default(), RelayConfig{BatchSize: 1})

		mockOutbox.On("GetPending", ctx, 1).Return([]*OutboxEvent{productEvent("p-1")}, nil).Once()
		mockOutbox.On("GetPending", ctx, 1).Return(nil, errors.New("db down")).Once()
		mockRedis.On("XAdd", ctx, mock.Anything).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, mock.Anything).Return(nil)

		published, err := relay.Drain(ctx)
		assert.Error(t, err)
		assert.Equal(t, 1, published)
	})
}

func TestRelay_StartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mockOutbox := new(MockOutboxRepository)
	mockOutbox.On("GetPending", mock.Anything, 100).Return([]*OutboxEvent{}, nil)

	relay := NewRelay(mockOutbox, new(MockRedisClient), slog.Default(), RelayConfig{PollInterval: 10 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- relay.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestNextRetryTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(2*time.Second), nextRetryTime(now, 1))
	assert.Equal(t, now.Add(16*time.Second), nextRetryTime(now, 4))
	assert.Equal(t, now.Add(300*time.Second), nextRetryTime(now, 9))
	assert.Equal(t, now.Add(300*time.Second), nextRetryTime(now, 40))
}
