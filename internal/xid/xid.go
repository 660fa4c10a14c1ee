// Package xid generates prefixed reference codes for entities that staff
// read aloud or key into a till, where a bare UUID is too unwieldy.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a code like "ord-1756710000123456789-a1b2c3d4e5f60718".
// Codes are unique in practice but carry no ordering guarantee beyond the
// embedded timestamp.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
