package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const orderNumberPrefix = "MNG"

var suffixSpace = big.NewInt(100000)

// NewOrderNumber builds a human-readable order number from the current
// time plus a random five digit suffix. The suffix comes from
// crypto/rand so concurrent tills cannot race onto the same value
// within a second; uniqueness is still enforced by the orders table
// and callers retry on collision.
func NewOrderNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, suffixSpace)
	if err != nil {
		return "", fmt.Errorf("order number suffix: %w", err)
	}
	return fmt.Sprintf("%s%s%05d", orderNumberPrefix, now.Format("20060102150405"), n.Int64()), nil
}
