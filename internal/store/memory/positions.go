package memory

import (
	"context"
	"sort"

	"github.com/oddsworks/parimutuel/internal/domain"
)

type positionStore struct {
	book *bookState
}

func (p *positionStore) Get(ctx context.Context, roundID uint64, user string) (domain.Position, error) {
	pos, ok := p.book.positions[posKey{roundID, user}]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (p *positionStore) Put(ctx context.Context, pos domain.Position) error {
	p.book.positions[posKey{pos.RoundID, pos.User}] = pos
	return nil
}

func (p *positionStore) Delete(ctx context.Context, roundID uint64, user string) error {
	key := posKey{roundID, user}
	if _, ok := p.book.positions[key]; !ok {
		return domain.ErrNotFound
	}
	delete(p.book.positions, key)
	return nil
}

func (p *positionStore) ListByUser(ctx context.Context, user string, afterRound *uint64, limit int) ([]domain.Position, error) {
	all, err := p.AllByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, limit)
	for _, pos := range all {
		if afterRound != nil && pos.RoundID <= *afterRound {
			continue
		}
		out = append(out, pos)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (p *positionStore) ListByRound(ctx context.Context, roundID uint64, afterUser string, limit int) ([]domain.Position, error) {
	var out []domain.Position
	for key, pos := range p.book.positions {
		if key.round == roundID && (afterUser == "" || key.user > afterUser) {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *positionStore) AllByUser(ctx context.Context, user string) ([]domain.Position, error) {
	var out []domain.Position
	for key, pos := range p.book.positions {
		if key.user == user {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundID < out[j].RoundID })
	return out, nil
}

type claimStore struct {
	book *bookState
}

func (c *claimStore) Put(ctx context.Context, rec domain.ClaimRecord) error {
	c.book.claims[posKey{rec.RoundID, rec.User}] = rec
	return nil
}

func (c *claimStore) ListByUser(ctx context.Context, user string, afterRound *uint64, limit int) ([]domain.ClaimRecord, error) {
	var out []domain.ClaimRecord
	for key, rec := range c.book.claims {
		if key.user != user {
			continue
		}
		if afterRound != nil && key.round <= *afterRound {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundID < out[j].RoundID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *claimStore) ListByRound(ctx context.Context, roundID uint64, afterUser string, limit int) ([]domain.ClaimRecord, error) {
	var out []domain.ClaimRecord
	for key, rec := range c.book.claims {
		if key.round == roundID && (afterUser == "" || key.user > afterUser) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type spendStore struct {
	book *bookState
}

func (s *spendStore) Add(ctx context.Context, user string, amount uint64) error {
	total, err := domain.CheckedAdd(s.book.spend[user], amount)
	if err != nil {
		return err
	}
	s.book.spend[user] = total
	return nil
}

func (s *spendStore) Total(ctx context.Context, user string) (uint64, error) {
	return s.book.spend[user], nil
}
