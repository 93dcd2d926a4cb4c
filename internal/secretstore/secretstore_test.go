package secretstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gatehouseid/gatehouse/internal/config"
)

// newTestClient points a Client at a stub store.
func newTestClient(srv *httptest.Server) *Client {
	return NewClient(config.VaultConfig{
		Addr:    srv.URL,
		Token:   "test-token",
		Timeout: 2 * time.Second,
		Issuer:  "Gatehouse",
	})
}

// stubStore builds a handler simulating the Vault-style TOTP API.
func stubStore(healthy bool, secrets map[string]bool, valid bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sys/health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"initialized":true}`))
	})
	mux.HandleFunc("GET /v1/totp/keys/{uid}", func(w http.ResponseWriter, r *http.Request) {
		if !secrets[r.PathValue("uid")] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"data":{"url":"otpauth://totp/Gatehouse:a@b.c?secret=x"}}`))
	})
	mux.HandleFunc("POST /v1/totp/keys/{uid}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})
	mux.HandleFunc("POST /v1/totp/code/{uid}", func(w http.ResponseWriter, r *http.Request) {
		if valid {
			w.Write([]byte(`{"data":{"valid":true}}`))
			return
		}
		w.Write([]byte(`{"data":{"valid":false}}`))
	})
	return mux
}

func TestExists(t *testing.T) {
	srv := httptest.NewServer(stubStore(true, map[string]bool{"u1": true}, true))
	defer srv.Close()
	c := newTestClient(srv)

	exists, err := c.Exists(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected secret to exist for u1")
	}

	exists, err = c.Exists(context.Background(), "u2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected no secret for u2")
	}
}

func TestExists_UnhealthyStoreReadsAsAbsent(t *testing.T) {
	srv := httptest.NewServer(stubStore(false, map[string]bool{"u1": true}, true))
	defer srv.Close()
	c := newTestClient(srv)

	exists, err := c.Exists(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected unhealthy store to report secret as absent")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		healthy bool
		secrets map[string]bool
		valid   bool
		want    bool
	}{
		{"valid code", true, map[string]bool{"u1": true}, true, true},
		{"wrong code", true, map[string]bool{"u1": true}, false, false},
		{"no secret registered", true, map[string]bool{}, true, false},
		{"store down", false, map[string]bool{"u1": true}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(stubStore(tt.healthy, tt.secrets, tt.valid))
			defer srv.Close()
			c := newTestClient(srv)

			got, err := c.Validate(context.Background(), "u1", "123456")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate_UnreachableStoreFailsClosed(t *testing.T) {
	srv := httptest.NewServer(stubStore(true, map[string]bool{"u1": true}, true))
	c := newTestClient(srv)
	srv.Close() // Connection refused from here on.

	valid, _ := c.Validate(context.Background(), "u1", "123456")
	if valid {
		t.Error("expected unreachable store to fail validation closed")
	}
}

func TestSafeCreate(t *testing.T) {
	var created int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sys/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	existing := map[string]bool{"enrolled": true}
	mux.HandleFunc("GET /v1/totp/keys/{uid}", func(w http.ResponseWriter, r *http.Request) {
		if !existing[r.PathValue("uid")] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"data":{"url":"otpauth://x"}}`))
	})
	mux.HandleFunc("POST /v1/totp/keys/{uid}", func(w http.ResponseWriter, r *http.Request) {
		created++
		w.Write([]byte(`{"data":{}}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	if err := SafeCreate(context.Background(), c, "enrolled", "a@b.c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Error("expected no create for already-enrolled account")
	}

	if err := SafeCreate(context.Background(), c, "fresh", "a@b.c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Errorf("expected exactly one create, got %d", created)
	}
}
