package personaquiz

import "strings"

// ScoreLetters lists the eight letters in axis order
var ScoreLetters = []string{"E", "I", "S", "N", "T", "F", "J", "P"}

// Score tallies the answer values into the eight letter counts and derives
// the type. Ties resolve to the first letter of each axis.
func Score(answers map[int]string) (string, map[string]int) {
	scores := make(map[string]int, len(ScoreLetters))
	for _, letter := range ScoreLetters {
		scores[letter] = 0
	}
	for _, value := range answers {
		if _, ok := scores[value]; ok {
			scores[value]++
		}
	}

	var sb strings.Builder
	for i := 0; i < len(ScoreLetters); i += 2 {
		a, b := ScoreLetters[i], ScoreLetters[i+1]
		if scores[a] >= scores[b] {
			sb.WriteString(a)
		} else {
			sb.WriteString(b)
		}
	}
	return sb.String(), scores
}
