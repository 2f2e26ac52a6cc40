// Package memory is an in-process implementation of the ledger, used by
// tests and by local development without Postgres. Transactions work on a
// deep copy of the state and swap it in on success, so a failed callback
// rolls back every write it made.
package memory

import (
	"context"
	"sync"

	"github.com/oddsworks/parimutuel/internal/domain"
)

type posKey struct {
	round uint64
	user  string
}

// bookState holds the positions, claim records, and spend totals of one
// book. A claim record is unique per (round, user) because the position is
// deleted when it is claimed.
type bookState struct {
	positions map[posKey]domain.Position
	claims    map[posKey]domain.ClaimRecord
	spend     map[string]uint64
}

func newBookState() bookState {
	return bookState{
		positions: make(map[posKey]domain.Position),
		claims:    make(map[posKey]domain.ClaimRecord),
		spend:     make(map[string]uint64),
	}
}

func (b bookState) clone() bookState {
	out := bookState{
		positions: make(map[posKey]domain.Position, len(b.positions)),
		claims:    make(map[posKey]domain.ClaimRecord, len(b.claims)),
		spend:     make(map[string]uint64, len(b.spend)),
	}
	for k, v := range b.positions {
		out.positions[k] = v
	}
	for k, v := range b.claims {
		out.claims[k] = v
	}
	for k, v := range b.spend {
		out.spend[k] = v
	}
	return out
}

type state struct {
	bidding     *domain.Round
	live        *domain.Round
	finished    map[uint64]domain.Round
	nextRoundID uint64

	params *domain.Params
	halted bool
	admins []string
	assets []string
	feeds  map[string]string

	rounds bookState

	openProps  map[uint64]domain.Proposition
	doneProps  map[uint64]domain.Proposition
	nextPropID uint64
	props      bookState

	transfers  []domain.TransferInstruction
	executed   map[string]bool
	reputation []domain.ReputationCredit
}

func newState() *state {
	return &state{
		finished:  make(map[uint64]domain.Round),
		feeds:     make(map[string]string),
		rounds:    newBookState(),
		openProps: make(map[uint64]domain.Proposition),
		doneProps: make(map[uint64]domain.Proposition),
		props:     newBookState(),
		executed:  make(map[string]bool),
	}
}

func (st *state) clone() *state {
	out := &state{
		nextRoundID: st.nextRoundID,
		halted:      st.halted,
		admins:      append([]string(nil), st.admins...),
		assets:      append([]string(nil), st.assets...),
		feeds:       make(map[string]string, len(st.feeds)),
		finished:    make(map[uint64]domain.Round, len(st.finished)),
		rounds:      st.rounds.clone(),
		openProps:   make(map[uint64]domain.Proposition, len(st.openProps)),
		doneProps:   make(map[uint64]domain.Proposition, len(st.doneProps)),
		nextPropID:  st.nextPropID,
		props:       st.props.clone(),
		transfers:   append([]domain.TransferInstruction(nil), st.transfers...),
		executed:    make(map[string]bool, len(st.executed)),
		reputation:  append([]domain.ReputationCredit(nil), st.reputation...),
	}
	if st.bidding != nil {
		r := cloneRound(*st.bidding)
		out.bidding = &r
	}
	if st.live != nil {
		r := cloneRound(*st.live)
		out.live = &r
	}
	if st.params != nil {
		p := *st.params
		p.FeeRecipients = append([]domain.FeeRecipient(nil), st.params.FeeRecipients...)
		out.params = &p
	}
	for k, v := range st.finished {
		out.finished[k] = cloneRound(v)
	}
	for k, v := range st.feeds {
		out.feeds[k] = v
	}
	for k, v := range st.openProps {
		out.openProps[k] = cloneProp(v)
	}
	for k, v := range st.doneProps {
		out.doneProps[k] = cloneProp(v)
	}
	for k, v := range st.executed {
		out.executed[k] = v
	}
	return out
}

// cloneRound detaches the pools map so callers can mutate their copy without
// aliasing stored state.
func cloneRound(r domain.Round) domain.Round {
	pools := make(map[string]uint64, len(r.Pools))
	for k, v := range r.Pools {
		pools[k] = v
	}
	r.Pools = pools
	return r
}

func cloneProp(p domain.Proposition) domain.Proposition {
	pools := make(map[string]uint64, len(p.Pools))
	for k, v := range p.Pools {
		pools[k] = v
	}
	p.Pools = pools
	p.Options = append([]domain.PropOption(nil), p.Options...)
	return p
}

// Ledger is the in-memory domain.Ledger.
type Ledger struct {
	mu sync.RWMutex
	st *state
}

func NewLedger() *Ledger {
	return &Ledger{st: newState()}
}

func (l *Ledger) bind(st *state) domain.Stores {
	return domain.Stores{
		Rounds:        &roundStore{st: st},
		Params:        &paramsStore{st: st},
		State:         &stateStore{st: st},
		Positions:     &positionStore{book: &st.rounds},
		Claims:        &claimStore{book: &st.rounds},
		Spend:         &spendStore{book: &st.rounds},
		Props:         &propStore{st: st},
		PropPositions: &positionStore{book: &st.props},
		PropClaims:    &claimStore{book: &st.props},
		PropSpend:     &spendStore{book: &st.props},
		Outbox:        &outboxStore{st: st},
	}
}

// Tx runs fn against a deep copy of the state and installs the copy only
// when fn succeeds.
func (l *Ledger) Tx(ctx context.Context, fn func(domain.Stores) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.st.clone()
	if err := fn(l.bind(next)); err != nil {
		return err
	}
	l.st = next
	return nil
}

// View runs fn against a copy of the state, so reads never observe a
// half-applied transaction and stray writes cannot leak.
func (l *Ledger) View(ctx context.Context, fn func(domain.Stores) error) error {
	l.mu.RLock()
	snapshot := l.st.clone()
	l.mu.RUnlock()
	return fn(l.bind(snapshot))
}
