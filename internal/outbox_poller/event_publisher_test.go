package outbox_poller

import (
	"context"
	"errors"
	"testing"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/projectpay-escrow-engine/internal/domain/outbox"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOutboxRepo for testing
type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepo) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	args := m.Called(tx)
	return args.Get(0).(outbox.Repository)
}

// MockMessagePublisher for testing
type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockMessagePublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func pendingMessage(t *testing.T, id int64) *outbox.Message {
	t.Helper()
	event := shared.NewEscrowEvent(uuid.New(), shared.EventEscrowFunded, uuid.New())
	event.Amount = 500000
	event.CorrelationID = "corr1"

	message, err := outbox.NewMessage(event)
	require.NoError(t, err)
	message.ID = id
	return message
}

func TestEventPublisher_PublishEvent(t *testing.T) {
	logger := slog.Default()

	tests := []struct {
		name          string
		message       func(t *testing.T) *outbox.Message
		setupMocks    func(outboxRepo *MockOutboxRepo, producer *MockMessagePublisher, message *outbox.Message)
		expectedError error
	}{
		{
			name:    "successful publish",
			message: func(t *testing.T) *outbox.Message { return pendingMessage(t, 1) },
			setupMocks: func(outboxRepo *MockOutboxRepo, producer *MockMessagePublisher, message *outbox.Message) {
				producer.On("Publish", mock.Anything, message.EscrowID.String(), mock.MatchedBy(func(e *shared.EscrowEvent) bool {
					return e.EventID == message.EventID && e.Type == shared.EventEscrowFunded
				})).Return(nil).Once()

				outboxRepo.On("UpdateStatus", mock.Anything, int64(1), shared.OutboxStatusProcessed).Return(nil).Once()
			},
			expectedError: nil,
		},
		{
			name: "error unmarshalling payload",
			message: func(t *testing.T) *outbox.Message {
				message := pendingMessage(t, 1)
				message.Payload = []byte("invalid json")
				return message
			},
			setupMocks: func(outboxRepo *MockOutboxRepo, producer *MockMessagePublisher, message *outbox.Message) {
				outboxRepo.On("UpdateStatus", mock.Anything, int64(1), shared.OutboxStatusFailedToPublish).Return(nil).Once()
			},
			expectedError: errors.New("unmarshal payload"),
		},
		{
			name:    "error publishing to kafka",
			message: func(t *testing.T) *outbox.Message { return pendingMessage(t, 1) },
			setupMocks: func(outboxRepo *MockOutboxRepo, producer *MockMessagePublisher, message *outbox.Message) {
				producer.On("Publish", mock.Anything, message.EscrowID.String(), mock.Anything).Return(errors.New("broker down")).Once()
			},
			expectedError: errors.New("failed to publish event"),
		},
		{
			name:    "error updating outbox status",
			message: func(t *testing.T) *outbox.Message { return pendingMessage(t, 1) },
			setupMocks: func(outboxRepo *MockOutboxRepo, producer *MockMessagePublisher, message *outbox.Message) {
				producer.On("Publish", mock.Anything, message.EscrowID.String(), mock.Anything).Return(nil).Once()

				outboxRepo.On("UpdateStatus", mock.Anything, int64(1), shared.OutboxStatusProcessed).Return(errors.New("db error")).Once()
			},
			expectedError: errors.New("failed to mark outbox"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOutboxRepo := &MockOutboxRepo{}
			mockProducer := &MockMessagePublisher{}
			publisher := NewEventPublisher(mockOutboxRepo, mockProducer, logger)

			message := tt.message(t)
			tt.setupMocks(mockOutboxRepo, mockProducer, message)
			ctx := context.Background()

			err := publisher.PublishEvent(ctx, message)

			if tt.expectedError != nil {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}

			mockOutboxRepo.AssertExpectations(t)
			mockProducer.AssertExpectations(t)
		})
	}
}
