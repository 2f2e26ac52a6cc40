package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsworks/parimutuel/internal/domain"
	"github.com/oddsworks/parimutuel/internal/store/memory"
)

type captureWriter struct {
	puts map[string][]byte
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{puts: make(map[string][]byte)}
}

func (w *captureWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts[path] = b
	return nil
}

func (w *captureWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return w.Put(ctx, path, data, "application/x-ndjson")
}

func seedHistory(t *testing.T, ledger domain.Ledger) {
	t.Helper()
	winner := domain.SideBull
	err := ledger.Tx(context.Background(), func(s domain.Stores) error {
		old := domain.Round{
			ID:        1,
			Asset:     "ubtc",
			CloseTime: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
			Pools:     map[string]uint64{domain.SideBull: 100, domain.SideBear: 50},
			Winner:    &winner,
			Phase:     domain.PhaseFinished,
		}
		if err := s.Rounds.SaveFinished(context.Background(), old); err != nil {
			return err
		}
		recent := old
		recent.ID = 2
		recent.CloseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		if err := s.Rounds.SaveFinished(context.Background(), recent); err != nil {
			return err
		}
		return s.Claims.Put(context.Background(), domain.ClaimRecord{
			RoundID:   1,
			User:      "0x1111111111111111111111111111111111111111",
			Amount:    150,
			ClaimedAt: time.Date(2025, 1, 15, 13, 0, 0, 0, time.UTC),
		})
	})
	require.NoError(t, err)
}

func testArchiver(w BlobWriter, ledger domain.Ledger) *Archiver {
	return NewArchiver(w, ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestArchiveRounds_WritesRoundsAndClaimsBeforeCutoff(t *testing.T) {
	ledger := memory.NewLedger()
	seedHistory(t, ledger)
	w := newCaptureWriter()

	n, err := testArchiver(w, ledger).ArchiveRounds(context.Background(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rounds, ok := w.puts["archive/rounds/2025-02.jsonl"]
	require.True(t, ok)
	assert.Equal(t, 1, bytes.Count(rounds, []byte("\n")))
	assert.Contains(t, string(rounds), `"ID":1`)

	claims, ok := w.puts["archive/claims/2025-02.jsonl"]
	require.True(t, ok)
	assert.Contains(t, string(claims), `"Amount":150`)
}

func TestArchiveRounds_NothingBeforeCutoff(t *testing.T) {
	ledger := memory.NewLedger()
	seedHistory(t, ledger)
	w := newCaptureWriter()

	n, err := testArchiver(w, ledger).ArchiveRounds(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.puts)
}

func TestPrune_DeletesArchivedRounds(t *testing.T) {
	ledger := memory.NewLedger()
	seedHistory(t, ledger)

	n, err := testArchiver(newCaptureWriter(), ledger).Prune(context.Background(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = ledger.View(context.Background(), func(s domain.Stores) error {
		_, err := s.Rounds.Finished(context.Background(), 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Rounds.Finished(context.Background(), 2)
		assert.NoError(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestPrune_SkipsRoundsWithUnclaimedPositions(t *testing.T) {
	ledger := memory.NewLedger()
	seedHistory(t, ledger)
	err := ledger.Tx(context.Background(), func(s domain.Stores) error {
		return s.Positions.Put(context.Background(), domain.Position{
			RoundID: 1,
			User:    "0x2222222222222222222222222222222222222222",
			Outcome: domain.SideBear,
			Amount:  50,
		})
	})
	require.NoError(t, err)

	n, err := testArchiver(newCaptureWriter(), ledger).Prune(context.Background(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
}
