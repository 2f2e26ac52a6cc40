package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// PropDraft is the admin-supplied definition of a new proposition, and also
// the shape of a modification to an open one.
type PropDraft struct {
	Topic            string
	Description      string
	ImageURL         *string
	EndsAt           time.Time
	ExpectedResultAt *time.Time
	Options          []domain.PropOption
}

func (d PropDraft) validate(now time.Time) error {
	if d.Topic == "" {
		return domain.ErrBadParams
	}
	if !d.EndsAt.After(now) {
		return domain.ErrBadParams
	}
	if len(d.Options) < 2 {
		return domain.ErrBadParams
	}
	seen := make(map[string]struct{}, len(d.Options))
	for _, opt := range d.Options {
		if opt.Key == "" {
			return domain.ErrBadParams
		}
		if _, dup := seen[opt.Key]; dup {
			return domain.ErrBadParams
		}
		seen[opt.Key] = struct{}{}
	}
	return nil
}

// CreateProposition opens a new multi-option market. Every declared option
// gets a zero pool up front, so pool maps always enumerate the full option
// set.
func (e *Engine) CreateProposition(ctx context.Context, actor string, draft PropDraft) (domain.Proposition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return domain.Proposition{}, err
	}
	now := e.clock.Now()
	if err := draft.validate(now); err != nil {
		return domain.Proposition{}, err
	}

	var prop domain.Proposition
	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		id, err := s.Props.NextID(ctx)
		if err != nil {
			return err
		}

		pools := make(map[string]uint64, len(draft.Options))
		for _, opt := range draft.Options {
			pools[opt.Key] = 0
		}
		prop = domain.Proposition{
			ID:               id,
			Topic:            draft.Topic,
			Description:      draft.Description,
			ImageURL:         draft.ImageURL,
			EndsAt:           draft.EndsAt,
			ExpectedResultAt: draft.ExpectedResultAt,
			Options:          draft.Options,
			Pools:            pools,
			CreatedAt:        now,
		}

		if err := s.Props.PutOpen(ctx, prop); err != nil {
			return err
		}
		return s.Props.SetNextID(ctx, id+1)
	})
	if err != nil {
		return domain.Proposition{}, err
	}

	e.logger.InfoContext(ctx, "proposition created",
		slog.Uint64("prop_id", prop.ID),
		slog.String("topic", prop.Topic),
		slog.Int("options", len(prop.Options)),
	)
	e.publish(ctx, []event{{"props", map[string]any{
		"event":   "prop_created",
		"prop_id": prop.ID,
		"topic":   prop.Topic,
	}}})
	return prop, nil
}

// ModifyProposition edits the descriptive fields of an open proposition.
// The option set is immutable once stakes can exist against it, so Options
// on the draft is ignored here.
func (e *Engine) ModifyProposition(ctx context.Context, actor string, id uint64, draft PropDraft) (domain.Proposition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return domain.Proposition{}, err
	}
	now := e.clock.Now()
	if draft.Topic == "" || !draft.EndsAt.After(now) {
		return domain.Proposition{}, domain.ErrBadParams
	}

	var prop domain.Proposition
	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		prop, err = s.Props.Open(ctx, id)
		if err != nil {
			return err
		}
		prop.Topic = draft.Topic
		prop.Description = draft.Description
		prop.ImageURL = draft.ImageURL
		prop.EndsAt = draft.EndsAt
		prop.ExpectedResultAt = draft.ExpectedResultAt
		return s.Props.PutOpen(ctx, prop)
	})
	if err != nil {
		return domain.Proposition{}, err
	}

	e.logger.InfoContext(ctx, "proposition modified",
		slog.Uint64("prop_id", id),
		slog.String("actor", account),
	)
	return prop, nil
}

// PropStakeRequest is a request to stake on an open proposition.
type PropStakeRequest struct {
	User   string
	PropID uint64
	Option string
	Amount uint64
	Token  string
}

// PlacePropStake records a stake on one option of an open proposition.
// Staking closes at EndsAt. A user's first stake in a proposition counts
// them as a player; later stakes grow their position and must stay on the
// same option.
func (e *Engine) PlacePropStake(ctx context.Context, req PropStakeRequest) (domain.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	user, err := domain.NormalizeAccount(req.User)
	if err != nil {
		return domain.Position{}, err
	}

	now := e.clock.Now()
	var pos domain.Position

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertNotHalted(ctx, s); err != nil {
			return err
		}
		params, err := s.Params.Get(ctx)
		if err != nil {
			return err
		}
		if req.Token != params.Token {
			return domain.ErrWrongDenom
		}
		if req.Amount < params.MinStake {
			return domain.ErrBelowMinimum
		}

		prop, err := s.Props.Open(ctx, req.PropID)
		if err != nil {
			return err
		}
		if now.After(prop.EndsAt) {
			return domain.ErrStakingClosed
		}
		if _, ok := prop.Option(req.Option); !ok {
			return domain.ErrUnknownOutcome
		}

		hadPosition := false
		if _, err := s.PropPositions.Get(ctx, prop.ID, user); err == nil {
			hadPosition = true
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		pos, err = upsertPosition(ctx, s.PropPositions, prop.ID, user, req.Option, req.Amount, now)
		if err != nil {
			return err
		}

		prop.Pools[req.Option], err = domain.CheckedAdd(prop.Pools[req.Option], req.Amount)
		if err != nil {
			return err
		}
		if !hadPosition {
			prop.NumPlayers++
		}
		if err := s.Props.PutOpen(ctx, prop); err != nil {
			return err
		}
		if err := s.PropSpend.Add(ctx, user, req.Amount); err != nil {
			return err
		}

		exp, err := mulDiv(req.Amount, params.ExpPerUnitStaked, 1)
		if err != nil {
			return err
		}
		if exp > 0 {
			if err := s.Outbox.AddReputation(ctx, domain.NewReputationCredit(user, exp, "stake", now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Position{}, err
	}

	e.logger.InfoContext(ctx, "prop stake placed",
		slog.Uint64("prop_id", req.PropID),
		slog.String("user", user),
		slog.String("option", req.Option),
		slog.Uint64("amount", req.Amount),
	)
	e.publish(ctx, []event{{"stakes", map[string]any{
		"event":   "prop_stake_placed",
		"prop_id": req.PropID,
		"user":    user,
		"option":  req.Option,
		"amount":  req.Amount,
	}}})
	return pos, nil
}

// CompleteProposition declares the result of an open proposition and moves
// it to the finished archive. The result must be one of the declared option
// keys; completion is allowed before EndsAt when the real-world outcome is
// already known.
func (e *Engine) CompleteProposition(ctx context.Context, actor string, id uint64, result string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return err
	}

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		prop, err := s.Props.Open(ctx, id)
		if err != nil {
			return err
		}
		if _, ok := prop.Option(result); !ok {
			return domain.ErrUnknownOutcome
		}
		prop.Result = &result
		if err := s.Props.PutFinished(ctx, prop); err != nil {
			return err
		}
		return s.Props.DeleteOpen(ctx, id)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "proposition completed",
		slog.Uint64("prop_id", id),
		slog.String("result", result),
	)
	e.publish(ctx, []event{{"props", map[string]any{
		"event":   "prop_completed",
		"prop_id": id,
		"result":  result,
	}}})
	return nil
}

// CancelProposition voids an open proposition: it moves to the finished
// archive with the cancelled flag set and every stake settles as a full,
// fee-free refund.
func (e *Engine) CancelProposition(ctx context.Context, actor string, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return err
	}

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		prop, err := s.Props.Open(ctx, id)
		if err != nil {
			return err
		}
		prop.Cancelled = true
		if err := s.Props.PutFinished(ctx, prop); err != nil {
			return err
		}
		return s.Props.DeleteOpen(ctx, id)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "proposition cancelled",
		slog.Uint64("prop_id", id),
		slog.String("actor", account),
	)
	e.publish(ctx, []event{{"props", map[string]any{
		"event":   "prop_cancelled",
		"prop_id": id,
	}}})
	return nil
}

// PropClaimAll settles every resolved proposition position the user holds,
// mirroring ClaimAll on the binary book.
func (e *Engine) PropClaimAll(ctx context.Context, user string) (ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return ClaimResult{}, err
	}

	now := e.clock.Now()
	var result ClaimResult

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		params, err := s.Params.Get(ctx)
		if err != nil {
			return err
		}
		positions, err := s.PropPositions.AllByUser(ctx, account)
		if err != nil {
			return err
		}
		result, err = settleAndPay(ctx, s, settleBatch{
			positions: positions,
			store:     s.PropPositions,
			claims:    s.PropClaims,
			resolve:   propResolver(ctx, s),
			user:      account,
			params:    params,
			now:       now,
		})
		return err
	})
	if err != nil {
		return ClaimResult{}, err
	}

	e.logClaim(ctx, account, result)
	return result, nil
}

// PropClaimRound settles the user's position in one specific proposition.
func (e *Engine) PropClaimRound(ctx context.Context, user string, propID uint64) (ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return ClaimResult{}, err
	}

	now := e.clock.Now()
	var result ClaimResult

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		params, err := s.Params.Get(ctx)
		if err != nil {
			return err
		}
		pos, err := s.PropPositions.Get(ctx, propID, account)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNothingToClaim
			}
			return err
		}
		resolve := propResolver(ctx, s)
		if _, ok, err := resolve(ctx, propID); err != nil {
			return err
		} else if !ok {
			return &domain.RoundNotResolvedError{RoundID: propID}
		}
		result, err = settleAndPay(ctx, s, settleBatch{
			positions: []domain.Position{pos},
			store:     s.PropPositions,
			claims:    s.PropClaims,
			resolve:   resolve,
			user:      account,
			params:    params,
			now:       now,
		})
		return err
	})
	if err != nil {
		return ClaimResult{}, err
	}

	e.logClaim(ctx, account, result)
	return result, nil
}

// propResolver resolves propositions from the finished archive.
func propResolver(ctx context.Context, s domain.Stores) resolver {
	return func(ctx context.Context, id uint64) (resolvedRound, bool, error) {
		prop, err := s.Props.FinishedProp(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return resolvedRound{}, false, nil
			}
			return resolvedRound{}, false, err
		}
		return resolvedRound{
			Pools:     prop.Pools,
			Winner:    prop.Result,
			Cancelled: prop.Cancelled,
		}, true, nil
	}
}

// OpenPropositions pages through propositions still accepting stakes.
func (e *Engine) OpenPropositions(ctx context.Context, afterID *uint64, limit int) ([]domain.Proposition, error) {
	var props []domain.Proposition
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		props, err = s.Props.ListOpen(ctx, afterID, domain.ClampLimit(limit))
		return err
	})
	return props, err
}

// FinishedPropositions pages through resolved and cancelled propositions.
func (e *Engine) FinishedPropositions(ctx context.Context, afterID *uint64, limit int) ([]domain.Proposition, error) {
	var props []domain.Proposition
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		props, err = s.Props.ListFinished(ctx, afterID, domain.ClampLimit(limit))
		return err
	})
	return props, err
}

// PropositionsByTopic returns propositions whose topic contains the given
// text, case-insensitively, open ones first. Intended for small result sets;
// it scans both books page by page.
func (e *Engine) PropositionsByTopic(ctx context.Context, topic string, limit int) ([]domain.Proposition, error) {
	needle := strings.ToLower(strings.TrimSpace(topic))
	if needle == "" {
		return nil, domain.ErrBadParams
	}
	limit = domain.ClampLimit(limit)

	var matches []domain.Proposition
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		for _, list := range []func(context.Context, *uint64, int) ([]domain.Proposition, error){
			s.Props.ListOpen,
			s.Props.ListFinished,
		} {
			var after *uint64
			for len(matches) < limit {
				page, err := list(ctx, after, domain.MaxPageLimit)
				if err != nil {
					return err
				}
				if len(page) == 0 {
					break
				}
				for _, prop := range page {
					if strings.Contains(strings.ToLower(prop.Topic), needle) {
						matches = append(matches, prop)
						if len(matches) == limit {
							break
						}
					}
				}
				last := page[len(page)-1].ID
				after = &last
			}
		}
		return nil
	})
	return matches, err
}

// Proposition returns one proposition by id, open or finished.
func (e *Engine) Proposition(ctx context.Context, id uint64) (domain.Proposition, error) {
	var prop domain.Proposition
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		prop, err = s.Props.Open(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			prop, err = s.Props.FinishedProp(ctx, id)
		}
		return err
	})
	return prop, err
}

// UserPropPositions pages through a user's open proposition positions.
func (e *Engine) UserPropPositions(ctx context.Context, user string, afterProp *uint64, limit int) ([]domain.Position, error) {
	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return nil, err
	}
	var positions []domain.Position
	err = e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		positions, err = s.PropPositions.ListByUser(ctx, account, afterProp, domain.ClampLimit(limit))
		return err
	})
	return positions, err
}

// PropPositions pages through the positions of one proposition.
func (e *Engine) PropPositions(ctx context.Context, propID uint64, afterUser string, limit int) ([]domain.Position, error) {
	var positions []domain.Position
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		positions, err = s.PropPositions.ListByRound(ctx, propID, afterUser, domain.ClampLimit(limit))
		return err
	})
	return positions, err
}

// PropPendingReward is the dry-run total the user could claim across
// resolved propositions, gross of fees.
func (e *Engine) PropPendingReward(ctx context.Context, user string) (uint64, error) {
	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return 0, err
	}
	var total uint64
	err = e.ledger.View(ctx, func(s domain.Stores) error {
		positions, err := s.PropPositions.AllByUser(ctx, account)
		if err != nil {
			return err
		}
		resolve := propResolver(ctx, s)
		for _, pos := range positions {
			resolved, ok, err := resolve(ctx, pos.RoundID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			st, err := settle(resolved.Pools, resolved.Winner, resolved.Cancelled, pos)
			if err != nil {
				return err
			}
			total, err = domain.CheckedAdd(total, st.Payout)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return total, err
}

// PropClaimsByUser pages through a user's claim history on the propositions
// book.
func (e *Engine) PropClaimsByUser(ctx context.Context, user string, afterProp *uint64, limit int) ([]domain.ClaimRecord, error) {
	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return nil, err
	}
	var records []domain.ClaimRecord
	err = e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		records, err = s.PropClaims.ListByUser(ctx, account, afterProp, domain.ClampLimit(limit))
		return err
	})
	return records, err
}
