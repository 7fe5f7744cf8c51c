package agents

import (
	"sort"

	"github.com/twquant/twse-agents/internal/toolkit"
	"github.com/twquant/twse-agents/pkg/models"
)

// Tools excluded from REBALANCING on top of the trade writers.
var rebalancingExcluded = map[string]bool{
	"analyze_fundamentals": true,
	"analyze_sentiment":    true,
}

// ToolsForMode derives the tool subset a session may see. All modes are
// masks over the full TRADING set; the profile's enabled-tool flags apply
// on top. The returned list is sorted so instruction composition stays
// deterministic.
func ToolsForMode(registry *toolkit.Registry, mode models.AgentMode, enabledTools []string) []string {
	enabled := map[string]bool{}
	for _, name := range enabledTools {
		enabled[name] = true
	}

	var allowed []string
	for _, name := range registry.ListTools() {
		meta, ok := registry.GetMetadata(name)
		if !ok {
			continue
		}
		if !modeAdmits(mode, name, meta.SideEffect) {
			continue
		}
		if len(enabled) > 0 && !enabled[name] {
			continue
		}
		allowed = append(allowed, name)
	}

	sort.Strings(allowed)
	return allowed
}

func modeAdmits(mode models.AgentMode, name string, effect models.SideEffect) bool {
	switch mode {
	case models.ModeTrading:
		return true

	case models.ModeRebalancing:
		if effect == models.EffectWriteTrade {
			return false
		}
		return !rebalancingExcluded[name]

	case models.ModeObservation:
		return effect != models.EffectWriteTrade && effect != models.EffectWriteStrategy

	case models.ModeStrategyReview:
		return effect != models.EffectWriteTrade

	default:
		return false
	}
}
