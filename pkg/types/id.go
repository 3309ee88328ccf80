package types

import (
	"crypto/rand"
	"encoding/base64"
)

// recordIDBytes is the amount of cryptographic randomness in a record id.
// 160 bits makes collisions negligible without any uniqueness check.
const recordIDBytes = 20

// NewRecordID produces a URL-safe, locally-unique random string for use as
// a record's primary key: 20 bytes of cryptographic randomness encoded as
// unpadded base64url (27 characters). No uniqueness check against existing
// records is performed.
func NewRecordID() (string, error) {
	buf := make([]byte, recordIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", Wrap(ErrCategorySession, CodeEngineFailure, "id generation failed", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
