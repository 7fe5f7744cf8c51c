package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error", "")
	os.Exit(m.Run())
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		limit   int
		offset  int
		badCode string
	}{
		{name: "defaults", query: "", limit: 50},
		{name: "explicit", query: "limit=10&offset=30", limit: 10, offset: 30},
		{name: "max limit", query: "limit=200", limit: 200},
		{name: "limit too large", query: "limit=201", badCode: "bad_limit"},
		{name: "limit zero", query: "limit=0", badCode: "bad_limit"},
		{name: "limit not a number", query: "limit=ten", badCode: "bad_limit"},
		{name: "negative offset", query: "offset=-1", badCode: "bad_offset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/agents/a1/trades?"+tt.query, nil)
			limit, offset, err := pagination(r)

			if tt.badCode != "" {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if apperrors.AsError(err).Code != tt.badCode {
					t.Errorf("code = %s, want %s", apperrors.AsError(err).Code, tt.badCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if limit != tt.limit || offset != tt.offset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d", limit, offset, tt.limit, tt.offset)
			}
		})
	}
}

func TestDecodeBody(t *testing.T) {
	type payload struct {
		Mode string `json:"mode"`
	}

	t.Run("valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"mode":"trading"}`))
		var p payload
		if err := decodeBody(r, &p); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if p.Mode != "trading" {
			t.Errorf("mode = %q", p.Mode)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"mode":`))
		var p payload
		err := decodeBody(r, &p)
		if err == nil {
			t.Fatal("expected error")
		}
		if apperrors.AsError(err).Code != "bad_body" {
			t.Errorf("code = %s, want bad_body", apperrors.AsError(err).Code)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"mood":"trading"}`))
		var p payload
		if err := decodeBody(r, &p); err == nil {
			t.Fatal("unknown fields must be rejected")
		}
	})
}

func TestWriteError(t *testing.T) {
	t.Run("typed error passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, apperrors.Conflictf("agent_busy", "already running"))

		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
		var body map[string]apperrors.Error
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if body["error"].Code != "agent_busy" {
			t.Errorf("code = %s", body["error"].Code)
		}
	})

	t.Run("internal details scrubbed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, errors.New("pq: password authentication failed"))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "password") {
			t.Error("internal error details must not reach the client")
		}
		if !strings.Contains(rec.Body.String(), "internal error") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})
}
