// Package textmatch provides the string similarity metrics used by drug
// name disambiguation.
package textmatch

import "strings"

// JaroWinkler computes the Jaro-Winkler similarity between two strings
// (case-insensitive). Returns a value between 0.0 and 1.0.
func JaroWinkler(s1, s2 string) float64 {
	s1 = strings.ToLower(s1)
	s2 = strings.ToLower(s2)

	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}
	if s1 == s2 {
		return 1.0
	}

	// Jaro distance.
	s1Len := len(s1)
	s2Len := len(s2)

	maxDist := s1Len
	if s2Len > maxDist {
		maxDist = s2Len
	}
	maxDist = maxDist/2 - 1
	if maxDist < 0 {
		maxDist = 0
	}

	s1Matches := make([]bool, s1Len)
	s2Matches := make([]bool, s2Len)

	matches := 0
	transpositions := 0

	for i := 0; i < s1Len; i++ {
		start := i - maxDist
		if start < 0 {
			start = 0
		}
		end := i + maxDist + 1
		if end > s2Len {
			end = s2Len
		}
		for j := start; j < end; j++ {
			if s2Matches[j] || s1[i] != s2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < s1Len; i++ {
		if !s1Matches[i] {
			continue
		}
		for !s2Matches[k] {
			k++
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	jaro := (float64(matches)/float64(s1Len) +
		float64(matches)/float64(s2Len) +
		float64(matches-transpositions/2)/float64(matches)) / 3.0

	// Winkler adjustment: boost for common prefix (up to 4 chars).
	prefixLen := 0
	maxPrefix := 4
	if s1Len < maxPrefix {
		maxPrefix = s1Len
	}
	if s2Len < maxPrefix {
		maxPrefix = s2Len
	}
	for i := 0; i < maxPrefix; i++ {
		if s1[i] != s2[i] {
			break
		}
		prefixLen++
	}

	return jaro + float64(prefixLen)*0.1*(1.0-jaro)
}

// Levenshtein computes the edit distance between two strings
// (case-insensitive), counting insertions, deletions and substitutions.
func Levenshtein(s1, s2 string) int {
	a := []rune(strings.ToLower(s1))
	b := []rune(strings.ToLower(s2))

	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost

			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// LevenshteinSimilarity normalizes edit distance to [0,1]:
// 1 - distance/max(len). Two empty strings are identical.
func LevenshteinSimilarity(s1, s2 string) float64 {
	maxLen := len([]rune(s1))
	if l := len([]rune(s2)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(Levenshtein(s1, s2))/float64(maxLen)
}
