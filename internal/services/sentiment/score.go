package sentiment

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/stockbuddy/advisor/internal/models"
)

// financeKeywords are the context terms of the relevance model. An article
// that never names the symbol can still count when it talks about these.
var financeKeywords = []string{"stock", "share", "trading", "market", "price", "investment", "portfolio"}

// Relevance blends raw symbol mentions with distinct keyword hits, capped at
// 1.0. One direct mention (0.6) clears the default floor on its own; a
// keyword-only article needs at least two terms.
const (
	symbolMentionWeight  = 0.6
	financeKeywordWeight = 0.4
)

// relevance scores one article for a symbol over its title and summary.
func relevance(symbol string, article *models.NewsArticle) float64 {
	text := strings.ToLower(article.Title)
	if article.Summary != "" {
		text += " " + strings.ToLower(article.Summary)
	}

	// Headlines write BHP, not BHP.AU, so mentions count the base token.
	mentions := strings.Count(text, strings.ToLower(baseSymbol(symbol)))

	var keywords int
	for _, kw := range financeKeywords {
		if strings.Contains(text, kw) {
			keywords++
		}
	}

	score := symbolMentionWeight*float64(mentions) + financeKeywordWeight*float64(keywords)
	if score > 1 {
		score = 1
	}
	return score
}

// baseSymbol strips the exchange suffix from a symbol.
func baseSymbol(symbol string) string {
	if i := strings.IndexByte(symbol, '.'); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// scoreArticles stamps each article's relevance and drops the ones below the
// floor, published before the window opened, or missing a title.
func scoreArticles(symbol string, articles []*models.NewsArticle, floor float64, since time.Time) []*models.NewsArticle {
	kept := make([]*models.NewsArticle, 0, len(articles))
	for _, a := range articles {
		if a == nil || strings.TrimSpace(a.Title) == "" {
			continue
		}
		if !a.PublishedAt.IsZero() && a.PublishedAt.Before(since) {
			continue
		}
		score := relevance(symbol, a)
		if score < floor {
			continue
		}
		a.Relevance = score
		kept = append(kept, a)
	}
	return kept
}

// dedupe drops near-identical headlines: exact matches after normalization,
// or token-set Jaccard at or above the floor. The earliest-published copy
// wins; later ones are syndication.
func dedupe(articles []*models.NewsArticle, jaccardFloor float64) []*models.NewsArticle {
	if len(articles) < 2 {
		return articles
	}

	sorted := make([]*models.NewsArticle, len(articles))
	copy(sorted, articles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.Before(sorted[j].PublishedAt)
	})

	type seenTitle struct {
		norm   string
		tokens map[string]struct{}
	}
	seen := make([]seenTitle, 0, len(sorted))
	out := make([]*models.NewsArticle, 0, len(sorted))
	for _, a := range sorted {
		norm := normalizeTitle(a.Title)
		tokens := tokenSet(norm)
		dup := false
		for _, prev := range seen {
			if prev.norm == norm || jaccard(prev.tokens, tokens) >= jaccardFloor {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen = append(seen, seenTitle{norm: norm, tokens: tokens})
		out = append(out, a)
	}
	return out
}

// normalizeTitle lowercases, strips punctuation, and collapses whitespace so
// syndicated copies of one headline compare equal.
func normalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	pendingSpace := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// tokenSet returns the distinct tokens of a normalized title.
func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		set[tok] = struct{}{}
	}
	return set
}

// jaccard is intersection over union of two token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// articlePolarity returns the provider's score when the feed ships one,
// otherwise the lexicon's.
func articlePolarity(a *models.NewsArticle) float64 {
	if a.Polarity != nil {
		return clampPolarity(*a.Polarity)
	}
	text := a.Title
	if a.Summary != "" {
		text += " " + a.Summary
	}
	return lexiconScore(text)
}

// aggregate folds scored articles into one signal. Weighting by relevance
// keeps a vaguely on-topic headline from moving the needle as far as a
// direct one. Confidence grows with sample size and shrinks with
// disagreement: (n / (n + k)) * 1 / (1 + variance).
func aggregate(symbol string, articles []*models.NewsArticle, window time.Duration, smoothingK float64, asOf time.Time) *models.SentimentSignal {
	sig := &models.SentimentSignal{
		Symbol: symbol,
		Window: window,
		AsOf:   asOf,
	}
	if len(articles) == 0 {
		return sig
	}

	var weightSum float64
	for _, a := range articles {
		weightSum += a.Relevance
	}
	uniform := weightSum <= 0
	if uniform {
		weightSum = float64(len(articles))
	}

	polarities := make([]float64, len(articles))
	var mean float64
	for i, a := range articles {
		p := articlePolarity(a)
		polarities[i] = p
		w := a.Relevance
		if uniform {
			w = 1
		}
		mean += w * p
	}
	mean /= weightSum

	var variance float64
	for i, a := range articles {
		w := a.Relevance
		if uniform {
			w = 1
		}
		d := polarities[i] - mean
		variance += w * d * d
	}
	variance /= weightSum

	n := float64(len(articles))
	sig.Polarity = &mean
	sig.SampleSize = len(articles)
	sig.Variance = variance
	sig.Confidence = (n / (n + smoothingK)) * (1 / (1 + variance))
	return sig
}
