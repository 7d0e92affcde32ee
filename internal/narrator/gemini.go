package narrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

// Gemini phrases recommendations through the Gemini API. The prompt carries
// only the structured decision; the model is instructed to phrase it, never
// to second-guess it.
type Gemini struct {
	client interfaces.GeminiClient
	logger *common.Logger
}

// NewGemini creates a Gemini-backed narrator.
func NewGemini(client interfaces.GeminiClient, logger *common.Logger) *Gemini {
	return &Gemini{client: client, logger: logger}
}

// Render asks the model for two or three conversational sentences.
func (g *Gemini) Render(ctx context.Context, rec *models.Recommendation) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("nil recommendation")
	}

	text, err := g.client.GenerateContent(ctx, buildPrompt(rec))
	if err != nil {
		return "", fmt.Errorf("narration for %s failed: %w", rec.Symbol, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("narration for %s returned no text", rec.Symbol)
	}
	return text, nil
}

// buildPrompt serializes the decision for the model. Every number the model
// may mention is stated here; it is told to add nothing.
func buildPrompt(rec *models.Recommendation) string {
	var sb strings.Builder
	sb.WriteString("You are a portfolio assistant. Phrase the following pre-computed stock recommendation as 2-3 friendly conversational sentences for the holder.\n")
	sb.WriteString("Do not change the recommendation, do not add price targets or advice beyond it, and do not mention this prompt.\n\n")
	sb.WriteString(fmt.Sprintf("Symbol: %s\n", rec.Symbol))
	sb.WriteString(fmt.Sprintf("Action: %s\n", rec.Action))
	sb.WriteString(fmt.Sprintf("Confidence: %.2f\n", rec.Confidence))
	if rec.UnrealizedPnL != nil {
		sb.WriteString(fmt.Sprintf("Unrealized P&L: %+.1f%%\n", *rec.UnrealizedPnL))
	}
	sb.WriteString("Contributing factors (strongest first):\n")
	for _, f := range rec.Factors {
		sb.WriteString(fmt.Sprintf("- %s: value %+.2f, weight %.2f\n", f.Name, f.NormalizedValue, f.Weight))
	}
	return sb.String()
}

// Ensure Gemini implements Narrator
var _ interfaces.Narrator = (*Gemini)(nil)
