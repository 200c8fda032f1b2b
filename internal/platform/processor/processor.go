// Package processor wraps the external payment processor behind a small
// client interface. The engine calls the processor before committing any
// financial transaction locally, so a processor failure never leaves a
// half-recorded movement.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/projectpay-escrow-engine/internal/config"
)

// Client performs fund movements against the external payment processor
type Client interface {
	// OpenAccount provisions a processor-side escrow account and returns
	// its handle
	OpenAccount(ctx context.Context, projectID, clientID, contractorID uuid.UUID) (string, error)

	// Deposit moves client funds into the processor escrow account and
	// returns the external transaction id
	Deposit(ctx context.Context, accountHandle string, amount int64, method, idempotencyKey string) (string, error)

	// Withdraw pays a recipient out of the processor escrow account and
	// returns the external transaction id
	Withdraw(ctx context.Context, accountHandle string, recipientID uuid.UUID, amount int64, idempotencyKey string) (string, error)
}

// Error carries the failing operation and the processor's HTTP status so
// callers can distinguish retryable failures from rejections
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("processor %s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Retryable reports whether the failure is transient (server side or rate
// limited) rather than a rejection of the request itself
func (e *Error) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates an HTTP payment processor client
func NewClient(logger *slog.Logger, cfg *config.ProcessorConfig) Client {
	return &httpClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type openAccountRequest struct {
	ProjectID    uuid.UUID `json:"project_id"`
	ClientID     uuid.UUID `json:"client_id"`
	ContractorID uuid.UUID `json:"contractor_id"`
}

type openAccountResponse struct {
	AccountHandle string `json:"account_handle"`
}

func (c *httpClient) OpenAccount(ctx context.Context, projectID, clientID, contractorID uuid.UUID) (string, error) {
	var resp openAccountResponse
	err := c.post(ctx, "open_account", "/v1/escrow-accounts", openAccountRequest{
		ProjectID:    projectID,
		ClientID:     clientID,
		ContractorID: contractorID,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.AccountHandle, nil
}

type depositRequest struct {
	Amount         int64  `json:"amount"`
	Method         string `json:"method"`
	IdempotencyKey string `json:"idempotency_key"`
}

type withdrawRequest struct {
	RecipientID    uuid.UUID `json:"recipient_id"`
	Amount         int64     `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key"`
}

type transactionResponse struct {
	TransactionID string `json:"transaction_id"`
}

func (c *httpClient) Deposit(ctx context.Context, accountHandle string, amount int64, method, idempotencyKey string) (string, error) {
	var resp transactionResponse
	path := fmt.Sprintf("/v1/escrow-accounts/%s/deposits", accountHandle)
	err := c.post(ctx, "deposit", path, depositRequest{
		Amount:         amount,
		Method:         method,
		IdempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.TransactionID, nil
}

func (c *httpClient) Withdraw(ctx context.Context, accountHandle string, recipientID uuid.UUID, amount int64, idempotencyKey string) (string, error) {
	var resp transactionResponse
	path := fmt.Sprintf("/v1/escrow-accounts/%s/withdrawals", accountHandle)
	err := c.post(ctx, "withdraw", path, withdrawRequest{
		RecipientID:    recipientID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.TransactionID, nil
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *httpClient) post(ctx context.Context, op, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("processor %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if unmarshalErr := json.Unmarshal(raw, &apiErr); unmarshalErr != nil || apiErr.Message == "" {
			apiErr.Message = string(raw)
		}
		c.logger.Error("Payment processor call failed", "op", op, "status", resp.StatusCode, "message", apiErr.Message)
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
