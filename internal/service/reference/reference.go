// Package reference generates payment references.
//
// A reference is '<prefix>_<user id>_<unix millis>_<12 hex chars>'. Two references of one user
// collide only when generated in the same millisecond with the same 48 random bits.
package reference

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	PrefixDeposit    = "DEP"
	PrefixWithdrawal = "WD"

	randomBytesLen = 6
)

func New(prefix string, userID uuid.UUID, now time.Time) (string, error) {
	b := make([]byte, randomBytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating reference suffix: %w", err)
	}

	return fmt.Sprintf("%s_%s_%d_%s", prefix, userID, now.UnixMilli(), hex.EncodeToString(b)), nil
}
