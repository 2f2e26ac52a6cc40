package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// BlobWriter is the narrow upload surface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// multipartThreshold is the payload size above which uploads switch to the
// multipart path.
const multipartThreshold = 8 * 1024 * 1024

// Archiver exports settled history to object storage: finished rounds and
// their claim records are serialized to JSONL, partitioned by the year-month
// of the cutoff.
//
// Deletion of archived rounds from the primary store is intentionally a
// separate, explicit step (Prune), to be executed after the archive has been
// verified.
type Archiver struct {
	writer BlobWriter
	ledger domain.Ledger
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer BlobWriter, ledger domain.Ledger, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		ledger: ledger,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveRounds uploads every finished round that closed strictly before the
// cutoff, along with the claim records settled against it. Returns the
// number of rounds archived.
func (a *Archiver) ArchiveRounds(ctx context.Context, before time.Time) (int64, error) {
	var (
		rounds []domain.Round
		claims []domain.ClaimRecord
	)
	err := a.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		rounds, err = a.finishedBefore(ctx, s, before)
		if err != nil {
			return err
		}
		for _, r := range rounds {
			rc, err := a.claimsForRound(ctx, s, r.ID)
			if err != nil {
				return err
			}
			claims = append(claims, rc...)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds query: %w", err)
	}
	if len(rounds) == 0 {
		return 0, nil
	}

	roundsBuf, err := marshalJSONL(rounds)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds marshal: %w", err)
	}
	roundsPath := archivePath("rounds", before)
	if err := a.upload(ctx, roundsPath, roundsBuf); err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds upload: %w", err)
	}

	if len(claims) > 0 {
		claimsBuf, err := marshalJSONL(claims)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive claims marshal: %w", err)
		}
		if err := a.upload(ctx, archivePath("claims", before), claimsBuf); err != nil {
			return 0, fmt.Errorf("s3blob: archive claims upload: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "history archived",
		slog.String("path", roundsPath),
		slog.Int("rounds", len(rounds)),
		slog.Int("claims", len(claims)),
	)
	return int64(len(rounds)), nil
}

// Prune deletes finished rounds that closed strictly before the cutoff from
// the primary store. Call only after the corresponding archive upload has
// been verified. Open positions against a pruned round block its deletion:
// those rounds are skipped and reported in the returned count's shortfall.
func (a *Archiver) Prune(ctx context.Context, before time.Time) (int64, error) {
	var pruned int64
	err := a.ledger.Tx(ctx, func(s domain.Stores) error {
		rounds, err := a.finishedBefore(ctx, s, before)
		if err != nil {
			return err
		}
		for _, r := range rounds {
			positions, err := s.Positions.ListByRound(ctx, r.ID, "", 1)
			if err != nil {
				return err
			}
			if len(positions) > 0 {
				continue // unclaimed positions keep the round alive
			}
			if err := s.Rounds.DeleteFinished(ctx, r.ID); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune rounds: %w", err)
	}

	a.logger.InfoContext(ctx, "history pruned", slog.Int64("rounds", pruned))
	return pruned, nil
}

// upload sends one archive file, switching to a multipart upload for large
// payloads.
func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// finishedBefore pages through the finished archive and keeps rounds closed
// strictly before the cutoff.
func (a *Archiver) finishedBefore(ctx context.Context, s domain.Stores, before time.Time) ([]domain.Round, error) {
	var (
		out    []domain.Round
		cursor uint64
	)
	for {
		page, err := s.Rounds.ListFinishedBefore(ctx, cursor, domain.MaxPageLimit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return out, nil
		}
		for _, r := range page {
			if r.CloseTime.Before(before) {
				out = append(out, r)
			}
		}
		cursor = page[len(page)-1].ID
	}
}

// claimsForRound pages through every claim record of one round.
func (a *Archiver) claimsForRound(ctx context.Context, s domain.Stores, roundID uint64) ([]domain.ClaimRecord, error) {
	var (
		out   []domain.ClaimRecord
		after string
	)
	for {
		page, err := s.Claims.ListByRound(ctx, roundID, after, domain.MaxPageLimit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return out, nil
		}
		out = append(out, page...)
		after = page[len(page)-1].User
	}
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/rounds/2025-01.jsonl
//	archive/claims/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
