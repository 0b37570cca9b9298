package util

import (
	"crypto/md5"
	"encoding/json"
	"math/big"

	"github.com/google/uuid"
)

// uidRoot is the UUID-derived UID arc (ISO/IEC 9834-8).
const uidRoot = "2.25."

// NewUID returns a fresh UID under the 2.25 arc.
func NewUID() string {
	return uuidToUID(uuid.New())
}

// HashUID returns a stable UID derived from the JSON encoding of value, or ""
// when value cannot be encoded.
func HashUID(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	hash := md5.Sum(raw)
	u, err := uuid.FromBytes(hash[:])
	if err != nil {
		return ""
	}
	return uuidToUID(u)
}

// CallID is a short random identifier for correlating log records.
func CallID() string {
	return uuid.NewString()[:8]
}

func uuidToUID(u uuid.UUID) string {
	return uidRoot + new(big.Int).SetBytes(u[:]).String()
}
