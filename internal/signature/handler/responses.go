package handler

import (
	"time"

	"openletter/internal/signature/models"
)

// PublicSignature is one row of the public list. The checksum is never shown.
type PublicSignature struct {
	Nation   string    `json:"nation"`
	FlagURL  string    `json:"flag_url"`
	Region   string    `json:"region"`
	SignedAt time.Time `json:"signed_at"`
}

// AdminSignature adds the id needed for deletion.
type AdminSignature struct {
	ID int64 `json:"id"`
	PublicSignature
}

type PublicListResponse struct {
	Signatures []PublicSignature `json:"signatures"`
	Total      int               `json:"total"`
}

type AdminListResponse struct {
	Signatures []AdminSignature `json:"signatures"`
	Total      int              `json:"total"`
}

type SignResponse struct {
	Nation   string    `json:"nation"`
	SignedAt time.Time `json:"signed_at"`
}

type TokenResponse struct {
	Nation string `json:"nation"`
	Token  string `json:"token"`
}

func toPublic(e models.SignedEntry) PublicSignature {
	return PublicSignature{
		Nation:   e.Nation,
		FlagURL:  e.Display.FlagURL,
		Region:   e.Display.Region,
		SignedAt: e.SignedAt,
	}
}

func FromEntries(entries []models.SignedEntry) PublicListResponse {
	out := PublicListResponse{Signatures: make([]PublicSignature, len(entries)), Total: len(entries)}
	for i, e := range entries {
		out.Signatures[i] = toPublic(e)
	}
	return out
}

func FromEntriesAdmin(entries []models.SignedEntry) AdminListResponse {
	out := AdminListResponse{Signatures: make([]AdminSignature, len(entries)), Total: len(entries)}
	for i, e := range entries {
		out.Signatures[i] = AdminSignature{ID: e.ID, PublicSignature: toPublic(e)}
	}
	return out
}
