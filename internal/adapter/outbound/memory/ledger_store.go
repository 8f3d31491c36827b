package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/outbound"
)

// ledgerStore keeps the ledger in process memory. A single mutex makes
// every operation atomic, which stands in for the transactions of the
// durable stores. Values are copied in and out so callers never share
// state with the store.
type ledgerStore struct {
	mu           sync.Mutex
	accounts     map[string]*model.Account
	reservations map[string]*model.Reservation
	grants       map[string]*model.CreditGrant
	deficits     []*model.BillingDeficit
	ambiguous    map[string]*model.AmbiguousOutcome
}

// NewLedgerStore creates an empty in-memory ledger store.
func NewLedgerStore() outbound.LedgerStorePort {
	return &ledgerStore{
		accounts:     make(map[string]*model.Account),
		reservations: make(map[string]*model.Reservation),
		grants:       make(map[string]*model.CreditGrant),
		ambiguous:    make(map[string]*model.AmbiguousOutcome),
	}
}

func (s *ledgerStore) GetBalance(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return 0, outbound.ErrAccountNotFound
	}
	return acct.Balance, nil
}

func (s *ledgerStore) CreateReservation(_ context.Context, r *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *ledgerStore) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, outbound.ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *ledgerStore) SettleReservation(_ context.Context, p outbound.SettleParams) (*model.Settlement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[p.ReservationID]
	if !ok {
		return nil, false, outbound.ErrReservationNotFound
	}
	if r.AccountID != p.AccountID {
		return nil, false, outbound.ErrReservationMismatch
	}
	switch {
	case r.Status == model.ReservationStatusSettled:
		return r.Settlement(), false, nil
	case !r.Status.IsSettleable():
		return nil, false, outbound.ErrReservationClosed
	}

	acct, ok := s.accounts[p.AccountID]
	if !ok {
		return nil, false, outbound.ErrAccountNotFound
	}

	charged := min(p.ActualCost, acct.Balance)
	deficit := p.ActualCost - charged
	acct.Balance -= charged
	acct.UpdatedAt = p.At

	settledAt := p.At
	r.Status = model.ReservationStatusSettled
	r.ActualCost = p.ActualCost
	r.Charged = charged
	r.Deficit = deficit
	r.BalanceAfter = acct.Balance
	r.SettledAt = &settledAt
	r.UpdatedAt = p.At

	if deficit > 0 {
		s.deficits = append(s.deficits, &model.BillingDeficit{
			ID:            uuid.NewString(),
			ReservationID: r.ID,
			AccountID:     r.AccountID,
			ActualCost:    p.ActualCost,
			Charged:       charged,
			Shortfall:     deficit,
			CreatedAt:     p.At,
		})
	}
	s.resolveAmbiguous(r.ID, p.ActualCost, p.At)

	return r.Settlement(), true, nil
}

func (s *ledgerStore) AbandonReservation(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return false, outbound.ErrReservationNotFound
	}
	if !r.Status.IsSettleable() {
		return false, nil
	}
	r.Status = model.ReservationStatusAbandoned
	r.UpdatedAt = at
	s.resolveAmbiguous(id, 0, at)
	return true, nil
}

func (s *ledgerStore) MarkAmbiguous(_ context.Context, id, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return false, outbound.ErrReservationNotFound
	}
	if r.Status != model.ReservationStatusPending && r.Status != model.ReservationStatusExpired {
		return false, nil
	}
	r.Status = model.ReservationStatusAmbiguous
	r.UpdatedAt = at

	if _, exists := s.ambiguous[id]; !exists {
		s.ambiguous[id] = &model.AmbiguousOutcome{
			ID:            uuid.NewString(),
			ReservationID: id,
			AccountID:     r.AccountID,
			EstimatedCost: r.EstimatedCost,
			Reason:        reason,
			CreatedAt:     at,
		}
	}
	return true, nil
}

func (s *ledgerStore) ExpireReservations(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.reservations {
		if r.Status == model.ReservationStatusPending && r.ExpiresAt.Before(now) {
			r.Status = model.ReservationStatusExpired
			r.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *ledgerStore) ApplyGrant(_ context.Context, grant *model.CreditGrant) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.grants[grant.EventID]; dup {
		var balance int64
		if acct, ok := s.accounts[grant.AccountID]; ok {
			balance = acct.Balance
		}
		return balance, false, nil
	}

	acct, ok := s.accounts[grant.AccountID]
	if !ok {
		acct = &model.Account{ID: grant.AccountID, CreatedAt: grant.CreatedAt}
		s.accounts[grant.AccountID] = acct
	}
	acct.Balance += grant.Credits
	acct.UpdatedAt = grant.CreatedAt

	cp := *grant
	s.grants[grant.EventID] = &cp
	return acct.Balance, true, nil
}

func (s *ledgerStore) ListDeficits(_ context.Context, limit int) ([]*model.BillingDeficit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.BillingDeficit, 0, min(limit, len(s.deficits)))
	for i := len(s.deficits) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.deficits[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *ledgerStore) ListAmbiguous(_ context.Context, limit int, includeResolved bool) ([]*model.AmbiguousOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.AmbiguousOutcome, 0, len(s.ambiguous))
	for _, a := range s.ambiguous {
		if a.Resolved && !includeResolved {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ledgerStore) Ping(context.Context) error {
	return nil
}

// resolveAmbiguous closes an open queue entry. Caller holds s.mu.
func (s *ledgerStore) resolveAmbiguous(reservationID string, cost int64, at time.Time) {
	a, ok := s.ambiguous[reservationID]
	if !ok || a.Resolved {
		return
	}
	resolvedAt := at
	a.Resolved = true
	a.ResolvedCost = &cost
	a.ResolvedAt = &resolvedAt
}
