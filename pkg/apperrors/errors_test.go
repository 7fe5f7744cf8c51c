package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{name: "typed validation", err: Validationf("bad", "nope"), kind: KindValidation},
		{name: "wrapped typed", err: fmt.Errorf("outer: %w", NotFoundf("missing", "gone")), kind: KindNotFound},
		{name: "context canceled", err: context.Canceled, kind: KindCancelled},
		{name: "deadline exceeded", err: fmt.Errorf("call: %w", context.DeadlineExceeded), kind: KindCancelled},
		{name: "plain error", err: errors.New("boom"), kind: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf = %s, want %s", got, tt.kind)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: Validationf("bad", "nope"), status: http.StatusUnprocessableEntity},
		{name: "not found", err: NotFoundf("missing", "gone"), status: http.StatusNotFound},
		{name: "conflict", err: Conflictf("busy", "running"), status: http.StatusConflict},
		{name: "rate limited", err: RateLimited("throttled", "wait", time.Second), status: http.StatusTooManyRequests},
		{name: "upstream", err: Upstreamf("down", "twse unavailable"), status: http.StatusBadGateway},
		{name: "budget exhausted", err: New(KindBudgetExceeded, "turns", "budget spent"), status: http.StatusOK},
		{name: "cancelled", err: context.Canceled, status: http.StatusOK},
		{name: "internal", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestError_Chaining(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internalf("db_down", "storage unavailable").WithCause(cause).WithDetail("host", "db1")

	if !errors.Is(err, cause) {
		t.Error("cause must be reachable through errors.Is")
	}
	if err.Details["host"] != "db1" {
		t.Errorf("details = %v", err.Details)
	}

	withField := Validationf("bad_limit", "limit out of range").WithField("limit")
	if withField.Field != "limit" {
		t.Errorf("field = %q", withField.Field)
	}
	if msg := withField.Error(); msg != "validation: limit out of range (field limit)" {
		t.Errorf("message = %q", msg)
	}
}

func TestAsError(t *testing.T) {
	typed := Conflictf("agent_busy", "already running")
	if got := AsError(fmt.Errorf("wrap: %w", typed)); got != typed {
		t.Error("AsError must unwrap to the original typed error")
	}

	plain := errors.New("boom")
	wrapped := AsError(plain)
	if wrapped.Kind != KindInternal {
		t.Errorf("kind = %s, want internal", wrapped.Kind)
	}
	if !errors.Is(wrapped, plain) {
		t.Error("original error must remain reachable")
	}
}
