package core

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Id prefixes per collection.
const (
	PrefixTransaction = "trans"
	PrefixRequest     = "req"
	PrefixGoal        = "goal"
	PrefixRule        = "rule"
)

// IDGenerator returns a fresh id for the given collection prefix.
type IDGenerator func(prefix string) string

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns "<prefix>_<ULID>". ULIDs sort by creation time and stay
// unique within the same millisecond.
func NewID(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return prefix + "_" + id.String()
}
