package match

// minFuzzyTokenLen guards short tokens: fuzzy-matching three-letter words at
// distance 2 would equate almost everything.
const minFuzzyTokenLen = 4

// editDistance computes the Levenshtein distance between two strings,
// bailing out early once the distance is guaranteed to exceed maxDist.
// Returns maxDist+1 when the bound is exceeded.
func editDistance(a, b string, maxDist int) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(rb)-len(ra) > maxDist {
		return maxDist + 1
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		rowMin := curr[0]
		for i := 1; i <= len(ra); i++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, min(curr[i-1]+1, prev[i-1]+cost))
			if curr[i] < rowMin {
				rowMin = curr[i]
			}
		}
		if rowMin > maxDist {
			return maxDist + 1
		}
		prev, curr = curr, prev
	}

	return prev[len(ra)]
}

// fuzzyTokenMatch reports whether a text token matches an alias token within
// the given edit distance. Short tokens must match exactly.
func fuzzyTokenMatch(textToken, aliasToken string, maxDist int) bool {
	if textToken == aliasToken {
		return true
	}
	if len([]rune(textToken)) < minFuzzyTokenLen || len([]rune(aliasToken)) < minFuzzyTokenLen {
		return false
	}
	return editDistance(textToken, aliasToken, maxDist) <= maxDist
}
