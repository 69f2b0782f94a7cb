// Package scoring implements the pure similarity functions used by
// duplicate detection: edit distance, similarity percentage, and the
// phonetic blocking key. All functions are side-effect free.
package scoring

import (
	"math"
	"strings"
)

// Scorer provides string comparison algorithms
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Distance calculates the Levenshtein edit distance between two
// strings, counted over runes so accented or multi-byte input does
// not inflate the result.
func (s *Scorer) Distance(a, b string) int {
	if a == b {
		return 0
	}

	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two rows for dynamic programming
	row := make([]int, len(rb)+1)
	prevRow := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(rb)]
}

// Similarity converts edit distance into an integer percentage in
// [0,100]. Two empty strings count as a full match; a non-empty string
// against an empty one scores 0.
func (s *Scorer) Similarity(a, b string) int {
	lenA := len([]rune(a))
	lenB := len([]rune(b))

	maxLen := max(lenA, lenB)
	if maxLen == 0 {
		return 100
	}

	distance := s.Distance(a, b)
	score := int(math.Round(float64(maxLen-distance) / float64(maxLen) * 100))

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// PhoneticKey derives a fixed 4-character Soundex-style key from a
// normalized name. The first letter is kept as-is; subsequent letters
// map to digit classes, adjacent duplicates collapse against the last
// appended code, and a space resets that code so the next word can
// start a class already used. The key is a blocking key only, never a
// match signal. Empty input yields "0000".
func (s *Scorer) PhoneticKey(str string) string {
	runes := []rune(strings.ToLower(str))
	if len(runes) == 0 {
		return "0000"
	}

	var key strings.Builder
	key.WriteRune(runes[0])
	length := 1
	prevCode := phoneticCode(runes[0])

	for _, r := range runes[1:] {
		if length >= 4 {
			break
		}
		if r == ' ' {
			prevCode = 0
			continue
		}
		code := phoneticCode(r)
		if code != 0 && code != prevCode {
			key.WriteByte(code)
			prevCode = code
			length++
		}
	}

	for length < 4 {
		key.WriteByte('0')
		length++
	}

	return key.String()
}

// phoneticCode returns the digit class for a letter, or 0 for vowels
// and anything else that produces no code
func phoneticCode(r rune) byte {
	switch r {
	case 'b', 'f', 'p', 'v':
		return '1'
	case 'c', 'g', 'j', 'k', 'q', 's', 'x', 'z':
		return '2'
	case 'd', 't':
		return '3'
	case 'l':
		return '4'
	case 'm', 'n':
		return '5'
	case 'r':
		return '6'
	default:
		return 0
	}
}
