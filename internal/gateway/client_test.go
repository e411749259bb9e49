package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/rs/zerolog"
)

func TestClient_Create(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != TransactionPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		var tx domain.Transaction
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(tx)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil, zerolog.Nop())
	in := domain.NewTransaction("Rent", 500, false, time.Now())
	out, err := c.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.ID != in.ID || out.Value != -500 {
		t.Errorf("Create returned %+v", out)
	}
}

func TestClient_ValidationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Missing Information","errors":{"name":"Enter a name for transaction"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, zerolog.Nop())
	_, err := c.Create(context.Background(), domain.Transaction{Date: time.Now()})

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["name"] == "" {
		t.Errorf("expected name field error, got %v", verr.Fields)
	}
	if errors.Is(err, ErrTransport) {
		t.Error("validation failure must not be a transport failure")
	}
}

func TestClient_TransportFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"bad gateway from agent", http.StatusBadGateway},
		{"server error", http.StatusInternalServerError},
		{"not found", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New(srv.URL, nil, zerolog.Nop())
			_, err := c.BulkCreate(context.Background(), []domain.Transaction{{Name: "x", Date: time.Now()}})
			if !errors.Is(err, ErrTransport) {
				t.Fatalf("expected ErrTransport, got %v", err)
			}
			var terr *TransportError
			if !errors.As(err, &terr) || terr.Status != tt.status {
				t.Errorf("expected status %d in %v", tt.status, err)
			}
		})
	}
}

func TestClient_NoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, nil, zerolog.Nop())
	_, err := c.List(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport for closed server, got %v", err)
	}
}

func TestClient_UndecodableAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>offline</html>"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, zerolog.Nop())
	if _, err := c.List(context.Background()); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport for undecodable body, got %v", err)
	}
}

func TestClient_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"b","value":2,"date":"2024-01-02T00:00:00Z"},{"name":"a","value":1,"date":"2024-01-01T00:00:00Z"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, zerolog.Nop())
	txs, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(txs) != 2 || txs[0].Name != "b" {
		t.Errorf("List = %+v", txs)
	}
}
