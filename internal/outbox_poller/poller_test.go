package outbox_poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/projectpay-escrow-engine/internal/config"
	"github.com/projectpay-escrow-engine/internal/domain/outbox"
	"github.com/projectpay-escrow-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockEventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishEvent(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func TestPoller_ProcessPendingMessages(t *testing.T) {
	logger := slog.Default()

	cfg := &config.OutboxConfig{
		PollingInterval:  time.Second,
		BatchSize:        10,
		MaxRetryAttempts: 3,
	}

	tests := []struct {
		name          string
		setupMocks    func(t *testing.T, outboxRepo *MockOutboxRepo, publisher *MockEventPublisher)
		expectedError error
	}{
		{
			name: "successful processing of pending messages",
			setupMocks: func(t *testing.T, outboxRepo *MockOutboxRepo, publisher *MockEventPublisher) {
				message1 := pendingMessage(t, 1)
				message2 := pendingMessage(t, 2)
				outboxRepo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{message1, message2}, nil).Once()

				publisher.On("PublishEvent", mock.Anything, message1).Return(nil).Once()
				publisher.On("PublishEvent", mock.Anything, message2).Return(nil).Once()
			},
			expectedError: nil,
		},
		{
			name: "error getting pending messages",
			setupMocks: func(t *testing.T, outboxRepo *MockOutboxRepo, publisher *MockEventPublisher) {
				outboxRepo.On("GetPending", mock.Anything, 10).Return(nil, errors.New("db error")).Once()
			},
			expectedError: errors.New("failed to get pending outbox messages"),
		},
		{
			name: "no pending messages",
			setupMocks: func(t *testing.T, outboxRepo *MockOutboxRepo, publisher *MockEventPublisher) {
				outboxRepo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{}, nil).Once()
			},
			expectedError: nil,
		},
		{
			name: "error publishing one message",
			setupMocks: func(t *testing.T, outboxRepo *MockOutboxRepo, publisher *MockEventPublisher) {
				message1 := pendingMessage(t, 1)
				message2 := pendingMessage(t, 2)
				outboxRepo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{message1, message2}, nil).Once()

				publisher.On("PublishEvent", mock.Anything, message1).Return(errors.New("publish error")).Once()

				outboxRepo.On("IncrementAttempts", mock.Anything, int64(1)).Return(nil).Once()

				publisher.On("PublishEvent", mock.Anything, message2).Return(nil).Once()
			},
			expectedError: nil,
		},
		{
			name: "max retry attempts reached",
			setupMocks: func(t *testing.T, outboxRepo *MockOutboxRepo, publisher *MockEventPublisher) {
				maxAttemptsMessage := pendingMessage(t, 3)
				maxAttemptsMessage.Attempts = 2

				outboxRepo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{maxAttemptsMessage}, nil).Once()

				publisher.On("PublishEvent", mock.Anything, maxAttemptsMessage).Return(errors.New("publish error")).Once()

				outboxRepo.On("IncrementAttempts", mock.Anything, int64(3)).Return(nil).Once()

				outboxRepo.On("UpdateStatus", mock.Anything, int64(3), shared.OutboxStatusFailedToPublish).Return(nil).Once()
			},
			expectedError: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOutboxRepo := &MockOutboxRepo{}
			mockPublisher := &MockEventPublisher{}
			poller := NewPoller(cfg, mockOutboxRepo, mockPublisher, logger)

			tt.setupMocks(t, mockOutboxRepo, mockPublisher)
			ctx := context.Background()

			err := poller.processPendingMessages(ctx)

			if tt.expectedError != nil {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}

			mockOutboxRepo.AssertExpectations(t)
			mockPublisher.AssertExpectations(t)
		})
	}
}

func TestPoller_Start(t *testing.T) {
	mockOutboxRepo := &MockOutboxRepo{}
	mockPublisher := &MockEventPublisher{}
	logger := slog.Default()

	cfg := &config.OutboxConfig{
		PollingInterval:  10 * time.Millisecond,
		BatchSize:        10,
		MaxRetryAttempts: 3,
	}

	poller := NewPoller(cfg, mockOutboxRepo, mockPublisher, logger)

	mockOutboxRepo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{}, nil).Maybe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	go poller.Start(ctx)

	<-ctx.Done()

	assert.True(t, true)
}
