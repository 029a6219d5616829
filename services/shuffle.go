package services

import "math/rand"

// Shuffle returns a Fisher-Yates shuffled copy of items. A nil r uses
// the package-level source.
func Shuffle[T any](r *rand.Rand, items []T) []T {
	shuffled := make([]T, len(items))
	copy(shuffled, items)

	intn := rand.Intn
	if r != nil {
		intn = r.Intn
	}
	for i := len(shuffled) - 1; i > 0; i-- {
		j := intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}
