package sentiment

import "strings"

// Wordlists for the built-in headline scorer. Financial headlines lean on a
// narrow vocabulary, so a small lexicon covers most of them; provider scores
// take precedence whenever the feed ships one.

var positiveWords = wordSet(
	"beat", "beats", "upgrade", "upgraded", "upgrades",
	"surge", "surges", "surged", "rally", "rallies", "rallied",
	"gain", "gains", "gained", "climb", "climbs", "climbed",
	"record", "strong", "stronger", "bullish", "growth",
	"profit", "profits", "profitable", "outperform", "outperforms",
	"exceed", "exceeds", "exceeded", "jump", "jumps", "jumped",
	"soar", "soars", "soared", "boost", "boosts", "boosted",
	"raise", "raises", "raised", "buyback", "dividend",
	"breakthrough", "win", "wins", "won", "optimistic", "upbeat",
	"rebound", "rebounds", "rebounded", "recovery", "expands", "expansion",
)

var negativeWords = wordSet(
	"miss", "misses", "missed", "downgrade", "downgraded", "downgrades",
	"plunge", "plunges", "plunged", "fall", "falls", "fell",
	"drop", "drops", "dropped", "slump", "slumps", "slumped",
	"loss", "losses", "weak", "weaker", "bearish",
	"decline", "declines", "declined", "lawsuit", "probe", "investigation",
	"recall", "recalls", "layoff", "layoffs", "warning", "warns", "warned",
	"bankruptcy", "fraud", "crash", "crashes", "crashed",
	"tumble", "tumbles", "tumbled", "selloff", "pessimistic", "downbeat",
	"slowdown", "default", "defaults", "sink", "sinks", "sank",
)

// lexiconDampWords scales length dampening: a single hit in a headline this
// many words long scores at half strength.
var lexiconDampWords = 8.0

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// lexiconScore rates text by signed lexicon hits over total hits, dampened
// when hits are sparse for the length of the text. No hits scores 0.
func lexiconScore(text string) float64 {
	words := strings.Fields(normalizeTitle(text))
	var pos, neg int
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			pos++
			continue
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}

	hits := pos + neg
	if hits == 0 {
		return 0
	}
	raw := float64(pos-neg) / float64(hits)
	damp := float64(hits) / (float64(hits) + float64(len(words))/lexiconDampWords)
	return clampPolarity(raw * damp)
}

// clampPolarity pins a score into the signal's [-1, +1] range.
func clampPolarity(p float64) float64 {
	if p > 1 {
		return 1
	}
	if p < -1 {
		return -1
	}
	return p
}
