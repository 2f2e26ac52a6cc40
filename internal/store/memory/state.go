package memory

import (
	"context"

	"github.com/oddsworks/parimutuel/internal/domain"
)

type paramsStore struct {
	st *state
}

func (p *paramsStore) Get(ctx context.Context) (domain.Params, error) {
	if p.st.params == nil {
		return domain.Params{}, domain.ErrNotFound
	}
	out := *p.st.params
	out.FeeRecipients = append([]domain.FeeRecipient(nil), p.st.params.FeeRecipients...)
	return out, nil
}

func (p *paramsStore) Put(ctx context.Context, params domain.Params) error {
	c := params
	c.FeeRecipients = append([]domain.FeeRecipient(nil), params.FeeRecipients...)
	p.st.params = &c
	return nil
}

type stateStore struct {
	st *state
}

func (s *stateStore) Halted(ctx context.Context) (bool, error) {
	return s.st.halted, nil
}

func (s *stateStore) SetHalted(ctx context.Context, halted bool) error {
	s.st.halted = halted
	return nil
}

func (s *stateStore) Admins(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.st.admins...), nil
}

func (s *stateStore) SetAdmins(ctx context.Context, admins []string) error {
	s.st.admins = append([]string(nil), admins...)
	return nil
}

func (s *stateStore) Assets(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.st.assets...), nil
}

func (s *stateStore) SetAssets(ctx context.Context, assets []string) error {
	s.st.assets = append([]string(nil), assets...)
	return nil
}

func (s *stateStore) PriceFeed(ctx context.Context, asset string) (string, error) {
	feed, ok := s.st.feeds[asset]
	if !ok {
		return "", domain.ErrNotFound
	}
	return feed, nil
}

func (s *stateStore) SetPriceFeed(ctx context.Context, asset, feed string) error {
	s.st.feeds[asset] = feed
	return nil
}

func (s *stateStore) PriceFeeds(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.st.feeds))
	for k, v := range s.st.feeds {
		out[k] = v
	}
	return out, nil
}
