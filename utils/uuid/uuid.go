package uuid

import (
	google_uuid "github.com/google/uuid"
)

// MustUUID returns a random (version 4) UUID string
func MustUUID() string {
	return google_uuid.New().String()
}
