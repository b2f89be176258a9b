package transfer

import (
	"math/rand/v2"

	"github.com/1ureka/nearchat/internal/protocol"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewID returns a random transfer id. Ids are only unique among the transfers
// currently in flight; callers that need uniqueness must check for collisions.
func NewID() string {
	b := make([]byte, protocol.IDLength)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}
