// Package credit implements CreditLedger (spec.md §4.7): atomic
// reserve/commit/refund of per-user credit balances. Grounded on
// mbd888-alancoin's internal/tenant package for its sentinel-error and
// Status-enum naming conventions; the balance store itself is new, sized
// for an in-process gateway rather than tenant's Postgres-backed model.
package credit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Sentinel errors for conditions checked with errors.Is.
var (
	ErrInsufficientCredits = errors.New("credit: insufficient balance")
	ErrUnknownReservation  = errors.New("credit: unknown reservation")
	ErrUnknownUser         = errors.New("credit: unknown user")
)

// Reservation is the token returned by Reserve; Commit/Refund consume it
// exactly once (repeat calls are no-ops, matching the idempotent-on-retry
// requirement in spec.md §4.7).
type Reservation struct {
	ID     string
	UserID string
	Cost   int
}

type reservationState int

const (
	stateHeld reservationState = iota
	stateCommitted
	stateRefunded
)

type account struct {
	balance      int
	reservations map[string]reservationState
}

// Ledger is CreditLedger: an in-process, mutex-serialized balance store
// keyed by user ID. A single ledger-wide mutex serializes every account's
// reserve/commit/refund, so mutations for different users also run one at
// a time.
type Ledger struct {
	mu           sync.Mutex
	accounts     map[string]*account
	startBalance int
}

// NewLedger constructs a Ledger; startBalance seeds a user's account the
// first time it is touched (CreditsPerUserStart from config).
func NewLedger(startBalance int) *Ledger {
	return &Ledger{accounts: make(map[string]*account), startBalance: startBalance}
}

func (l *Ledger) accountLocked(userID string) *account {
	a, ok := l.accounts[userID]
	if !ok {
		a = &account{balance: l.startBalance, reservations: make(map[string]reservationState)}
		l.accounts[userID] = a
	}
	return a
}

// Reserve attempts to hold cost credits for userID. Returns
// ErrInsufficientCredits if the account's balance can't cover it.
func (l *Ledger) Reserve(userID string, cost int) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.accountLocked(userID)
	if a.balance < cost {
		return Reservation{}, ErrInsufficientCredits
	}
	a.balance -= cost
	id := uuid.NewString()
	a.reservations[id] = stateHeld
	return Reservation{ID: id, UserID: userID, Cost: cost}, nil
}

// Commit finalizes a reservation: the held credits stay debited. Repeat
// calls for the same reservation are no-ops.
func (l *Ledger) Commit(r Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[r.UserID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, r.UserID)
	}
	state, ok := a.reservations[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, r.ID)
	}
	if state != stateHeld {
		return nil
	}
	a.reservations[r.ID] = stateCommitted
	return nil
}

// Refund reverses a reservation: the held credits are returned to the
// account's balance. Repeat calls for the same reservation, or for an
// already-committed one, are no-ops — every failure envelope triggers a
// refund call (spec.md §7) and some paths may call it more than once.
func (l *Ledger) Refund(r Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[r.UserID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, r.UserID)
	}
	state, ok := a.reservations[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, r.ID)
	}
	if state != stateHeld {
		return nil
	}
	a.balance += r.Cost
	a.reservations[r.ID] = stateRefunded
	return nil
}

// Balance returns userID's current available balance.
func (l *Ledger) Balance(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accountLocked(userID).balance
}
