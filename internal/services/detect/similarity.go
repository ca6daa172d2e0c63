package detect

import (
	"math"
	"strings"
)

// DescriptionSimilarity scores two statement descriptions into [0,1]. Each
// token of the shorter side is matched against its best Levenshtein
// counterpart on the other side and the per-token similarities are averaged.
func DescriptionSimilarity(a, b string) float64 {
	aTokens := strings.Fields(NormalizeDescription(a))
	bTokens := strings.Fields(NormalizeDescription(b))
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}
	if len(bTokens) < len(aTokens) {
		aTokens, bTokens = bTokens, aTokens
	}

	total := 0.0
	for _, at := range aTokens {
		best := 0.0
		for _, bt := range bTokens {
			dist := levenshtein(at, bt)
			maxLen := math.Max(float64(len(at)), float64(len(bt)))
			sim := 1 - float64(dist)/maxLen
			if sim > best {
				best = sim
			}
		}
		total += best
	}
	return total / float64(len(aTokens))
}

// NormalizeDescription uppercases and strips the punctuation bank exports
// sprinkle into otherwise identical descriptions.
func NormalizeDescription(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "*", " ")
	return strings.Join(strings.Fields(s), " ")
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := 0; i <= len(a); i++ {
		dp[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		dp[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			dp[i][j] = min(
				dp[i-1][j]+1,
				dp[i][j-1]+1,
				dp[i-1][j-1]+cost,
			)
		}
	}
	return dp[len(a)][len(b)]
}
