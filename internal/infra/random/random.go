// Package random provides the cryptographic random capability.
package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Crypto draws integers from crypto/rand.
type Crypto struct{}

// Intn returns a uniform integer in [0, n).
func (Crypto) Intn(n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("random: invalid bound %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("random: %w", err)
	}
	return v.Int64(), nil
}
