package advisor

import "strings"

// closestMatch finds the candidate most similar to name, case-insensitively.
// Similarity below cutoff means no match. Mirrors the loose matching needed
// for model output, which frequently drops underscores or changes case.
func closestMatch(name string, candidates []string, cutoff float64) (string, bool) {
	best := ""
	bestScore := 0.0

	for _, cand := range candidates {
		score := similarity(strings.ToLower(name), strings.ToLower(cand))
		if score > bestScore {
			best = cand
			bestScore = score
		}
	}

	if bestScore >= cutoff {
		return best, true
	}
	return "", false
}

// similarity is a normalized edit-distance ratio in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
