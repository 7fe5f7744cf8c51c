package toolkit

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/logger"
	"github.com/twquant/twse-agents/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Init("error", "")
	os.Exit(m.Run())
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry(nil)

	result, err := r.Execute(context.Background(), Scope{AgentID: "a1"}, "no_such_tool", nil)
	if err != nil {
		t.Fatalf("unknown tool must not surface an internal error: %v", err)
	}
	if result.OK {
		t.Fatal("unknown tool must not succeed")
	}
	if result.Error == nil || result.Error.Code != "unknown_tool" {
		t.Errorf("expected unknown_tool error descriptor, got %+v", result.Error)
	}
}

func TestRegistry_PanicRecovery(t *testing.T) {
	r := NewRegistry(nil)
	r.register("explode", Metadata{Description: "test only"}, func(ctx context.Context, _ Scope, _ map[string]any) (any, error) {
		panic("boom")
	})

	_, err := r.Execute(context.Background(), Scope{AgentID: "a1"}, "explode", nil)
	if err == nil {
		t.Fatal("expected error from panicking tool")
	}
	if apperrors.KindOf(err) != apperrors.KindInternal {
		t.Errorf("expected internal kind, got %s", apperrors.KindOf(err))
	}
	if apperrors.AsError(err).Code != "tool_panic" {
		t.Errorf("expected tool_panic code, got %s", apperrors.AsError(err).Code)
	}
}

func TestRegistry_FieldTagReachesResult(t *testing.T) {
	r := NewRegistry(nil)

	result, err := r.Execute(context.Background(), Scope{AgentID: "a1"}, "simulate_buy", map[string]any{})
	if err != nil {
		t.Fatalf("missing param must not surface as error: %v", err)
	}
	if result.OK {
		t.Fatal("expected failed result")
	}
	if result.Error.Field != "symbol" {
		t.Errorf("field = %q, want symbol", result.Error.Field)
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"field":"symbol"`) {
		t.Errorf("serialized result missing field tag: %s", data)
	}
}

func TestRegistry_ExpectedFailureStaysInResult(t *testing.T) {
	r := NewRegistry(nil)
	r.register("reject", Metadata{Description: "test only"}, func(ctx context.Context, _ Scope, _ map[string]any) (any, error) {
		return nil, apperrors.Validationf("bad_input", "rejected")
	})

	result, err := r.Execute(context.Background(), Scope{AgentID: "a1"}, "reject", nil)
	if err != nil {
		t.Fatalf("validation failure must not surface as error: %v", err)
	}
	if result.OK {
		t.Fatal("expected failed result")
	}
	if result.Error.Kind != string(apperrors.KindValidation) || result.Error.Code != "bad_input" {
		t.Errorf("unexpected descriptor: %+v", result.Error)
	}
}

func TestRegistry_InternalToolErrorSurfaces(t *testing.T) {
	r := NewRegistry(nil)
	r.register("break", Metadata{Description: "test only"}, func(ctx context.Context, _ Scope, _ map[string]any) (any, error) {
		return nil, apperrors.Internalf("db_down", "storage unavailable")
	})

	_, err := r.Execute(context.Background(), Scope{AgentID: "a1"}, "break", nil)
	if err == nil {
		t.Fatal("internal tool errors must propagate")
	}
	if apperrors.AsError(err).Code != "db_down" {
		t.Errorf("expected db_down, got %s", apperrors.AsError(err).Code)
	}
}

func TestRegistry_MetadataSchema(t *testing.T) {
	r := NewRegistry(nil)

	meta, ok := r.GetMetadata("simulate_buy")
	if !ok {
		t.Fatal("simulate_buy metadata missing")
	}
	if meta.SideEffect != models.EffectWriteTrade {
		t.Errorf("side effect = %s, want %s", meta.SideEffect, models.EffectWriteTrade)
	}

	schema := meta.Schema()
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
	required, _ := schema["required"].([]string)
	if len(required) != 2 {
		t.Errorf("required = %v, want [symbol quantity]", required)
	}
}

func TestRegistry_ReportPeriodParams(t *testing.T) {
	r := NewRegistry(nil)

	for _, name := range []string{"get_income_statement", "get_balance_sheet"} {
		meta, ok := r.GetMetadata(name)
		if !ok {
			t.Fatalf("%s metadata missing", name)
		}
		for _, param := range []string{"symbol", "year", "season"} {
			if _, ok := meta.Parameters[param]; !ok {
				t.Errorf("%s schema missing %s", name, param)
			}
		}
		if len(meta.Required) != 1 || meta.Required[0] != "symbol" {
			t.Errorf("%s required = %v, only symbol is mandatory", name, meta.Required)
		}
	}

	meta, ok := r.GetMetadata("get_daily_trading")
	if !ok {
		t.Fatal("get_daily_trading metadata missing")
	}
	if _, ok := meta.Parameters["date"]; !ok {
		t.Error("get_daily_trading schema missing date")
	}
}

func TestRegistry_ToolCount(t *testing.T) {
	r := NewRegistry(nil)
	if r.ToolCount() != 16 {
		t.Errorf("tool count = %d, want 16", r.ToolCount())
	}
}

func TestParamHelpers(t *testing.T) {
	t.Run("getString missing", func(t *testing.T) {
		_, err := getString(map[string]any{}, "symbol")
		if apperrors.AsError(err).Code != "missing_param" {
			t.Errorf("expected missing_param, got %v", err)
		}
	})

	t.Run("getString wrong type", func(t *testing.T) {
		_, err := getString(map[string]any{"symbol": 42}, "symbol")
		if apperrors.AsError(err).Code != "bad_param" {
			t.Errorf("expected bad_param, got %v", err)
		}
	})

	t.Run("getInt64 accepts json number forms", func(t *testing.T) {
		for name, val := range map[string]any{
			"float64": float64(1000),
			"int":     1000,
			"int64":   int64(1000),
			"number":  json.Number("1000"),
		} {
			got, err := getInt64(map[string]any{"quantity": val}, "quantity")
			if err != nil {
				t.Errorf("%s: unexpected error %v", name, err)
			}
			if got != 1000 {
				t.Errorf("%s: got %d, want 1000", name, got)
			}
		}
	})

	t.Run("optDecimal", func(t *testing.T) {
		want := decimal.NewFromFloat(580.5)
		if d := optDecimal(map[string]any{"limit_price": 580.5}, "limit_price"); d == nil || !d.Equal(want) {
			t.Errorf("float64 limit not parsed: %v", d)
		}
		if d := optDecimal(map[string]any{"limit_price": "580.5"}, "limit_price"); d == nil || !d.Equal(want) {
			t.Errorf("string limit not parsed: %v", d)
		}
		if d := optDecimal(map[string]any{}, "limit_price"); d != nil {
			t.Errorf("missing limit should be nil, got %v", d)
		}
	})

	t.Run("parseSeries", func(t *testing.T) {
		series, err := parseSeries(map[string]any{
			"series": []any{
				map[string]any{"symbol": "2330", "close": "580"},
			},
		}, "series")
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if len(series) != 1 || series[0].Symbol != "2330" {
			t.Errorf("unexpected series: %+v", series)
		}

		if _, err := parseSeries(map[string]any{"series": "not-an-array"}, "series"); err == nil {
			t.Error("expected error for non-array series")
		}
	})
}
