// Package joincode generates the short codes participants type to join a survey.
package joincode

import "math/rand"

const (
	// Alphabet is the set of characters a code is drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length is the number of characters in a code.
	Length = 6
)

// Generate draws codes uniformly from Alphabet until one is not in existing.
// intn must return a uniform value in [0, n); nil uses math/rand.
func Generate(existing map[string]struct{}, intn func(n int) int) string {
	if intn == nil {
		intn = rand.Intn
	}
	for {
		code := draw(intn)
		if _, taken := existing[code]; !taken {
			return code
		}
	}
}

func draw(intn func(n int) int) string {
	b := make([]byte, Length)
	for i := range b {
		b[i] = Alphabet[intn(len(Alphabet))]
	}
	return string(b)
}

// Valid reports whether code has the shape Generate produces.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
