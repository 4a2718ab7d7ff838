package handler

import (
	id "openletter/pkg/domain"
)

// SignRequest is the body of POST /api/signatures.
type SignRequest struct {
	Nation   string `json:"nation"`
	Checksum string `json:"checksum"`
}

// ParsedNation validates the nation field.
func (r SignRequest) ParsedNation() (id.NationName, error) {
	return id.ParseNationName(r.Nation)
}
