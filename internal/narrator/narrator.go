// Package narrator renders structured recommendations as conversational
// text. The engine never emits prose itself; everything here sits strictly
// downstream of the decision and must not alter it.
package narrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

// Template is the deterministic fallback narrator, used when no Gemini key
// is configured and as the test double.
type Template struct{}

// NewTemplate creates the template narrator.
func NewTemplate() *Template {
	return &Template{}
}

// Render phrases the recommendation from its structured fields alone.
func (t *Template) Render(_ context.Context, rec *models.Recommendation) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("nil recommendation")
	}

	if rec.InsufficientData() {
		return fmt.Sprintf("%s: not enough data to form a view — keep it on the watch list until a price or news signal arrives.", rec.Symbol), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s (%.0f%% confidence).", rec.Symbol, actionPhrase(rec.Action), rec.Confidence*100))

	if rec.UnrealizedPnL != nil {
		sb.WriteString(fmt.Sprintf(" The position is %s %.1f%%.", gainOrDown(*rec.UnrealizedPnL), abs(*rec.UnrealizedPnL)))
	}
	if lead := leadFactor(rec.Factors); lead != "" {
		sb.WriteString(" Driven mainly by " + lead + ".")
	}

	return sb.String(), nil
}

func actionPhrase(action models.Action) string {
	switch action {
	case models.ActionBuy:
		return "consider adding"
	case models.ActionSell:
		return "consider reducing"
	case models.ActionHold:
		return "hold"
	case models.ActionWatch:
		return "watch"
	default:
		return strings.ToLower(string(action))
	}
}

// leadFactor describes the strongest contributing factor. Factors arrive
// pre-sorted by absolute contribution.
func leadFactor(factors []models.Factor) string {
	if len(factors) == 0 {
		return ""
	}
	f := factors[0]
	direction := "positive"
	if f.NormalizedValue < 0 {
		direction = "negative"
	}
	switch f.Name {
	case models.FactorUnrealizedPnL:
		return direction + " unrealized P&L"
	case models.FactorMomentum:
		return direction + " price momentum"
	case models.FactorSentiment:
		return direction + " news sentiment"
	default:
		return ""
	}
}

func gainOrDown(pnlPct float64) string {
	if pnlPct >= 0 {
		return "up"
	}
	return "down"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Ensure Template implements Narrator
var _ interfaces.Narrator = (*Template)(nil)
