package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/domain/escrow"
	"github.com/projectpay-escrow-engine/internal/domain/ledger"
	"github.com/projectpay-escrow-engine/internal/engine/service"
	"github.com/projectpay-escrow-engine/internal/platform/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEscrowService struct {
	mock.Mock
}

func (m *MockEscrowService) CreateEscrow(ctx context.Context, projectID uuid.UUID, totalProjectValue int64, retentionPercentage int, clientID, contractorID uuid.UUID, correlationID string) (*escrow.Account, error) {
	args := m.Called(ctx, projectID, totalProjectValue, retentionPercentage, clientID, contractorID, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Account), args.Error(1)
}

func (m *MockEscrowService) GetEscrow(ctx context.Context, id uuid.UUID) (*escrow.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Account), args.Error(1)
}

func (m *MockEscrowService) GetEscrowByProject(ctx context.Context, projectID uuid.UUID) (*escrow.Account, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Account), args.Error(1)
}

func (m *MockEscrowService) FundEscrow(ctx context.Context, escrowID uuid.UUID, amount int64, method, correlationID string) (*escrow.Account, *ledger.Entry, error) {
	args := m.Called(ctx, escrowID, amount, method, correlationID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*escrow.Account), args.Get(1).(*ledger.Entry), args.Error(2)
}

func (m *MockEscrowService) GetLedger(ctx context.Context, escrowID uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error) {
	args := m.Called(ctx, escrowID, page, perPage)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*ledger.Entry), args.Get(1).(int64), args.Error(2)
}

func (m *MockEscrowService) MarkCompleted(ctx context.Context, escrowID uuid.UUID, correlationID string) (*escrow.Account, error) {
	args := m.Called(ctx, escrowID, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Account), args.Error(1)
}

func (m *MockEscrowService) ReleaseRetention(ctx context.Context, escrowID uuid.UUID, correlationID string) (*escrow.Account, error) {
	args := m.Called(ctx, escrowID, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Account), args.Error(1)
}

func (m *MockEscrowService) CloseEscrow(ctx context.Context, escrowID uuid.UUID, correlationID string) (*escrow.Account, error) {
	args := m.Called(ctx, escrowID, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Account), args.Error(1)
}

var _ service.EscrowService = (*MockEscrowService)(nil)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func testAccount(t *testing.T) *escrow.Account {
	t.Helper()
	acc, err := escrow.NewAccount(uuid.New(), 10000000, 10, uuid.New(), uuid.New())
	require.NoError(t, err)
	return acc
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var topLevel Response
	require.NoError(t, json.Unmarshal(body, &topLevel))
	require.NotNil(t, topLevel.Data, "'data' field should not be nil")

	dataBytes, err := json.Marshal(topLevel.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(dataBytes, &out))
	return out
}

func TestEscrowHandler_Create(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		acc := testAccount(t)
		mockService.On("CreateEscrow", mock.Anything, acc.ProjectID, int64(10000000), 10, acc.ClientID, acc.ContractorID, mock.Anything).Return(acc, nil)

		router := setupTestRouter()
		router.POST("/escrows", handler.Create)

		reqBody := CreateEscrowRequest{
			ProjectID:           acc.ProjectID.String(),
			TotalProjectValue:   10000000,
			RetentionPercentage: 10,
			ClientID:            acc.ClientID.String(),
			ContractorID:        acc.ContractorID.String(),
		}
		jsonBody, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/escrows", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		responseBody := decodeData[EscrowResponse](t, rr.Body.Bytes())
		assert.Equal(t, acc.ID.String(), responseBody.ID)
		assert.Equal(t, int64(10000000), responseBody.TotalProjectValue)
		assert.Equal(t, int64(1000000), responseBody.RetentionAmount)
		assert.Equal(t, "CREATED", responseBody.Status)

		mockService.AssertExpectations(t)
	})

	t.Run("InvalidRequestBody", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		router := setupTestRouter()
		router.POST("/escrows", handler.Create)

		req, _ := http.NewRequest(http.MethodPost, "/escrows", bytes.NewBufferString(`{"invalid`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("ProcessorFailure", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		acc := testAccount(t)
		procErr := &processor.Error{Op: "open_account", StatusCode: http.StatusServiceUnavailable, Message: "maintenance"}
		mockService.On("CreateEscrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, procErr)

		router := setupTestRouter()
		router.POST("/escrows", handler.Create)

		reqBody := CreateEscrowRequest{
			ProjectID:           acc.ProjectID.String(),
			TotalProjectValue:   10000000,
			RetentionPercentage: 10,
			ClientID:            acc.ClientID.String(),
			ContractorID:        acc.ContractorID.String(),
		}
		jsonBody, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/escrows", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadGateway, rr.Code)

		var response Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		require.NotNil(t, response.Error)
		assert.Equal(t, "PROCESSOR_ERROR", response.Error.Code)
		mockService.AssertExpectations(t)
	})
}

func TestEscrowHandler_GetByID(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		acc := testAccount(t)
		mockService.On("GetEscrow", mock.Anything, acc.ID).Return(acc, nil)

		router := setupTestRouter()
		router.GET("/escrows/:id", handler.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/escrows/"+acc.ID.String(), nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		responseBody := decodeData[EscrowResponse](t, rr.Body.Bytes())
		assert.Equal(t, acc.ID.String(), responseBody.ID)
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidUUID", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		router := setupTestRouter()
		router.GET("/escrows/:id", handler.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/escrows/not-a-uuid", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		escrowID := uuid.New()
		mockService.On("GetEscrow", mock.Anything, escrowID).Return(nil, escrow.ErrEscrowNotFound{EscrowID: escrowID})

		router := setupTestRouter()
		router.GET("/escrows/:id", handler.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/escrows/"+escrowID.String(), nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("ServiceError", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		escrowID := uuid.New()
		mockService.On("GetEscrow", mock.Anything, escrowID).Return(nil, errors.New("database connection lost"))

		router := setupTestRouter()
		router.GET("/escrows/:id", handler.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/escrows/"+escrowID.String(), nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestEscrowHandler_Fund(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		acc := testAccount(t)
		require.NoError(t, acc.Deposit(500000))
		entry, err := ledger.NewDeposit(acc.ID, acc.ClientID, 500000, "ACH", "ext-txn-1", "")
		require.NoError(t, err)

		mockService.On("FundEscrow", mock.Anything, acc.ID, int64(500000), "ACH", mock.Anything).Return(acc, entry, nil)

		router := setupTestRouter()
		router.POST("/escrows/:id/fund", handler.Fund)

		jsonBody, _ := json.Marshal(FundEscrowRequest{Amount: 500000, Method: "ACH"})
		req, _ := http.NewRequest(http.MethodPost, "/escrows/"+acc.ID.String()+"/fund", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		responseBody := decodeData[FundEscrowResponse](t, rr.Body.Bytes())
		assert.Equal(t, int64(500000), responseBody.Escrow.EscrowBalance)
		assert.Equal(t, int64(500000), responseBody.Entry.Amount)
		mockService.AssertExpectations(t)
	})

	t.Run("UnsupportedMethod", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		router := setupTestRouter()
		router.POST("/escrows/:id/fund", handler.Fund)

		jsonBody, _ := json.Marshal(FundEscrowRequest{Amount: 500000, Method: "CASH"})
		req, _ := http.NewRequest(http.MethodPost, "/escrows/"+uuid.New().String()+"/fund", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("ClosedEscrow", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		escrowID := uuid.New()
		mockService.On("FundEscrow", mock.Anything, escrowID, int64(500000), "WIRE", mock.Anything).Return(nil, nil, escrow.ErrEscrowClosed)

		router := setupTestRouter()
		router.POST("/escrows/:id/fund", handler.Fund)

		jsonBody, _ := json.Marshal(FundEscrowRequest{Amount: 500000, Method: "WIRE"})
		req, _ := http.NewRequest(http.MethodPost, "/escrows/"+escrowID.String()+"/fund", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)

		var response Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		require.NotNil(t, response.Error)
		assert.Equal(t, "ESCROW_CLOSED", response.Error.Code)
		mockService.AssertExpectations(t)
	})
}

func TestEscrowHandler_ReleaseRetention(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("NotCompleted", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		escrowID := uuid.New()
		mockService.On("ReleaseRetention", mock.Anything, escrowID, mock.Anything).Return(nil, escrow.ErrNotCompleted)

		router := setupTestRouter()
		router.POST("/escrows/:id/retention-release", handler.ReleaseRetention)

		req, _ := http.NewRequest(http.MethodPost, "/escrows/"+escrowID.String()+"/retention-release", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("InsufficientBalance", func(t *testing.T) {
		mockService := new(MockEscrowService)
		handler := NewEscrowHandler(logger, mockService)

		escrowID := uuid.New()
		mockService.On("ReleaseRetention", mock.Anything, escrowID, mock.Anything).
			Return(nil, escrow.ErrInsufficientEscrowBalance{EscrowID: escrowID, Requested: 100000, Available: 50000})

		router := setupTestRouter()
		router.POST("/escrows/:id/retention-release", handler.ReleaseRetention)

		req, _ := http.NewRequest(http.MethodPost, "/escrows/"+escrowID.String()+"/retention-release", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

		var response Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		require.NotNil(t, response.Error)
		assert.Equal(t, "INSUFFICIENT_BALANCE", response.Error.Code)
		mockService.AssertExpectations(t)
	})
}
