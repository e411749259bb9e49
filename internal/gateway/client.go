// Package gateway is the HTTP client for the transaction API. It separates
// transport failures (retryable, routed to the pending queue) from
// validation failures (surfaced to the caller, never retried).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TransactionPath     = "/api/transaction"
	BulkTransactionPath = "/api/transaction/bulk"
)

// ErrTransport marks failures where the server did not acknowledge the request.
var ErrTransport = errors.New("gateway: transport failure")

// TransportError describes a request that got no usable acknowledgement.
// Status is zero when no response arrived at all.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// errorBody is the error payload written by the API.
type errorBody struct {
	Error  string            `json:"error"`
	Errors map[string]string `json:"errors"`
}

// Client talks to the transaction API (through the cache agent in normal use).
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a client. A nil httpClient means a client with no timeout:
// a hung request blocks only its own operation.
func New(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log,
	}
}

// Create posts a single transaction and returns the stored record.
func (c *Client) Create(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	var stored domain.Transaction
	if err := c.do(ctx, "create", http.MethodPost, TransactionPath, tx, &stored); err != nil {
		return domain.Transaction{}, err
	}
	return stored, nil
}

// BulkCreate posts a batch. The batch is acknowledged or failed as a whole.
func (c *Client) BulkCreate(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error) {
	var stored []domain.Transaction
	if err := c.do(ctx, "bulk create", http.MethodPost, BulkTransactionPath, txs, &stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// List fetches all stored transactions, newest first.
func (c *Client) List(ctx context.Context) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	if err := c.do(ctx, "list", http.MethodGet, TransactionPath, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Str("request_id", requestID).Msg("request failed")
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return decodeValidation(data)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.log.Debug().
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("request_id", requestID).
			Str("agent_error", resp.Header.Get("X-Agent-Error")).
			Msg("request not acknowledged")
		return &TransportError{Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeValidation(data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)
	msg := body.Error
	if msg == "" {
		msg = "invalid transaction"
	}
	return &domain.ValidationError{Message: msg, Fields: body.Errors}
}
