// Package questions selects and shuffles the questions used in a round.
package questions

import (
	"math/rand"
)

// Dedupe drops questions whose term was already seen. The first occurrence wins
// and the input order is kept.
func Dedupe(all []Question) []Question {
	seen := make(map[string]bool, len(all))
	unique := make([]Question, 0, len(all))
	for _, q := range all {
		if seen[q.Term] {
			continue
		}
		seen[q.Term] = true
		unique = append(unique, q)
	}
	return unique
}

// SelectRound returns up to roundSize distinct questions in uniformly random order.
// When fewer unique questions exist than roundSize, all of them are returned.
// The input slice is not modified.
func SelectRound(all []Question, roundSize int, rng *rand.Rand) []Question {
	unique := Dedupe(all)
	rng.Shuffle(len(unique), func(i, j int) {
		unique[i], unique[j] = unique[j], unique[i]
	})
	if roundSize < 0 {
		roundSize = 0
	}
	if len(unique) > roundSize {
		unique = unique[:roundSize]
	}
	return unique
}

// DisplayChoices returns the choices of q in random order for rendering
func DisplayChoices(q Question, rng *rand.Rand) []string {
	choices := make([]string, len(q.Choices))
	copy(choices, q.Choices)
	rng.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	return choices
}
