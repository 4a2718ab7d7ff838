// Package service implements signing, listing and deleting signatures.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"openletter/internal/audit"
	nationModels "openletter/internal/nation/models"
	"openletter/internal/signature/models"
	id "openletter/pkg/domain"
	dErrors "openletter/pkg/domain-errors"
	"openletter/pkg/requestcontext"
)

// Store persists signatures.
type Store interface {
	Upsert(ctx context.Context, nation, checksum string, signedAt time.Time) (*models.Signature, error)
	List(ctx context.Context) ([]models.Signature, error)
	Delete(ctx context.Context, sigID id.SignatureID) (bool, error)
}

// Verifier checks nation ownership upstream. Verify never fails; any problem
// is reported as false.
type Verifier interface {
	Verify(ctx context.Context, nation, checksum string) bool
	Token(nation string) string
}

// Nations provides display data for signed nations.
type Nations interface {
	Lookup(ctx context.Context, name string) (nationModels.DisplayData, error)
	Enrich(ctx context.Context, names []string) map[string]nationModels.DisplayData
}

// Auditor records audit events.
type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

// Service coordinates verification, persistence and enrichment.
type Service struct {
	store    Store
	verifier Verifier
	nations  Nations
	auditor  Auditor
	logger   *slog.Logger
}

func New(store Store, verifier Verifier, nations Nations, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		verifier: verifier,
		nations:  nations,
		auditor:  auditor,
		logger:   logger,
	}
}

// Token returns the site token the signing page shows for nation.
func (s *Service) Token(nation id.NationName) string {
	return s.verifier.Token(nation.String())
}

// Sign verifies that the caller controls nation and records the signature.
// Signing again replaces the earlier checksum and timestamp.
func (s *Service) Sign(ctx context.Context, nation id.NationName, checksum string) (*models.Signature, error) {
	checksum = strings.TrimSpace(checksum)
	if checksum == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "checksum is required")
	}

	if !s.verifier.Verify(ctx, nation.String(), checksum) {
		s.auditor.Emit(ctx, audit.Event{Action: audit.ActionSignatureRejected, Nation: nation.String()})
		return nil, dErrors.New(dErrors.CodeVerificationFailed,
			"could not verify that you control this nation; check the code and try again")
	}

	sig, err := s.store.Upsert(ctx, nation.String(), checksum, requestcontext.Now(ctx))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store signature",
			"nation", nation.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record signature")
	}

	// Warms the cache under the live miss policy; otherwise a cheap read.
	if _, err := s.nations.Lookup(ctx, nation.String()); err != nil {
		s.logger.DebugContext(ctx, "no display data for signed nation", "nation", nation.String())
	}

	s.auditor.Emit(ctx, audit.Event{
		Action:      audit.ActionSignatureCreated,
		Nation:      sig.Nation,
		SignatureID: sig.ID,
	})
	return sig, nil
}

// List returns all signatures newest first, each with display data. Nations
// missing from the cache get an empty flag and the unknown region.
func (s *Service) List(ctx context.Context) ([]models.SignedEntry, error) {
	sigs, err := s.store.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list signatures",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list signatures")
	}

	names := make([]string, len(sigs))
	for i, sig := range sigs {
		names[i] = sig.Nation
	}
	display := s.nations.Enrich(ctx, names)

	out := make([]models.SignedEntry, len(sigs))
	for i, sig := range sigs {
		d, ok := display[sig.Nation]
		if !ok {
			d = nationModels.UnknownDisplay()
		}
		out[i] = models.SignedEntry{Signature: sig, Display: d}
	}
	return out, nil
}

// Delete removes a signature. Deleting an id that does not exist succeeds.
func (s *Service) Delete(ctx context.Context, sigID id.SignatureID) error {
	removed, err := s.store.Delete(ctx, sigID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete signature",
			"id", sigID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete signature")
	}

	e := audit.Event{Action: audit.ActionSignatureDeleted, SignatureID: int64(sigID)}
	if !removed {
		e.Detail = "no such signature"
	}
	s.auditor.Emit(ctx, e)
	return nil
}
