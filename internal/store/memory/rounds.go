package memory

import (
	"context"
	"sort"

	"github.com/oddsworks/parimutuel/internal/domain"
)

type roundStore struct {
	st *state
}

func (r *roundStore) Bidding(ctx context.Context) (domain.Round, error) {
	if r.st.bidding == nil {
		return domain.Round{}, domain.ErrNotFound
	}
	return cloneRound(*r.st.bidding), nil
}

func (r *roundStore) Live(ctx context.Context) (domain.Round, error) {
	if r.st.live == nil {
		return domain.Round{}, domain.ErrNotFound
	}
	return cloneRound(*r.st.live), nil
}

func (r *roundStore) SaveBidding(ctx context.Context, round domain.Round) error {
	c := cloneRound(round)
	r.st.bidding = &c
	return nil
}

func (r *roundStore) SaveLive(ctx context.Context, round domain.Round) error {
	c := cloneRound(round)
	r.st.live = &c
	return nil
}

func (r *roundStore) ClearBidding(ctx context.Context) error {
	r.st.bidding = nil
	return nil
}

func (r *roundStore) ClearLive(ctx context.Context) error {
	r.st.live = nil
	return nil
}

func (r *roundStore) SaveFinished(ctx context.Context, round domain.Round) error {
	r.st.finished[round.ID] = cloneRound(round)
	return nil
}

func (r *roundStore) Finished(ctx context.Context, id uint64) (domain.Round, error) {
	round, ok := r.st.finished[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return cloneRound(round), nil
}

func (r *roundStore) ListFinishedBefore(ctx context.Context, beforeID uint64, limit int) ([]domain.Round, error) {
	ids := make([]uint64, 0, len(r.st.finished))
	for id := range r.st.finished {
		if beforeID == 0 || id < beforeID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	rounds := make([]domain.Round, 0, len(ids))
	for _, id := range ids {
		rounds = append(rounds, cloneRound(r.st.finished[id]))
	}
	return rounds, nil
}

func (r *roundStore) DeleteFinished(ctx context.Context, id uint64) error {
	if _, ok := r.st.finished[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.st.finished, id)
	return nil
}

func (r *roundStore) NextID(ctx context.Context) (uint64, error) {
	return r.st.nextRoundID, nil
}

func (r *roundStore) SetNextID(ctx context.Context, id uint64) error {
	r.st.nextRoundID = id
	return nil
}
