package models

import (
	"time"

	nationModels "openletter/internal/nation/models"
)

// Signature is one nation's signature on the letter. There is at most one per
// nation; signing again refreshes the checksum and timestamp in place.
type Signature struct {
	ID       int64
	Nation   string
	Checksum string
	SignedAt time.Time
}

// SignedEntry is a signature with the nation's flag and region for display.
type SignedEntry struct {
	Signature
	Display nationModels.DisplayData
}
