package memory

import (
	"context"
	"sort"

	"github.com/oddsworks/parimutuel/internal/domain"
)

type propStore struct {
	st *state
}

func (p *propStore) NextID(ctx context.Context) (uint64, error) {
	return p.st.nextPropID, nil
}

func (p *propStore) SetNextID(ctx context.Context, id uint64) error {
	p.st.nextPropID = id
	return nil
}

func (p *propStore) PutOpen(ctx context.Context, prop domain.Proposition) error {
	p.st.openProps[prop.ID] = cloneProp(prop)
	return nil
}

func (p *propStore) Open(ctx context.Context, id uint64) (domain.Proposition, error) {
	prop, ok := p.st.openProps[id]
	if !ok {
		return domain.Proposition{}, domain.ErrNotFound
	}
	return cloneProp(prop), nil
}

func (p *propStore) DeleteOpen(ctx context.Context, id uint64) error {
	if _, ok := p.st.openProps[id]; !ok {
		return domain.ErrNotFound
	}
	delete(p.st.openProps, id)
	return nil
}

func (p *propStore) ListOpen(ctx context.Context, afterID *uint64, limit int) ([]domain.Proposition, error) {
	return listProps(p.st.openProps, afterID, limit), nil
}

func (p *propStore) PutFinished(ctx context.Context, prop domain.Proposition) error {
	p.st.doneProps[prop.ID] = cloneProp(prop)
	return nil
}

func (p *propStore) FinishedProp(ctx context.Context, id uint64) (domain.Proposition, error) {
	prop, ok := p.st.doneProps[id]
	if !ok {
		return domain.Proposition{}, domain.ErrNotFound
	}
	return cloneProp(prop), nil
}

func (p *propStore) ListFinished(ctx context.Context, afterID *uint64, limit int) ([]domain.Proposition, error) {
	return listProps(p.st.doneProps, afterID, limit), nil
}

func listProps(m map[uint64]domain.Proposition, afterID *uint64, limit int) []domain.Proposition {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		if afterID != nil && id <= *afterID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.Proposition, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneProp(m[id]))
	}
	return out
}
