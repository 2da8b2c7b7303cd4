package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the settlement state of a ticket.
type Status string

const (
	StatusPending        Status = "pending"
	StatusWonJackpot     Status = "won-jackpot"
	StatusWonConsolation Status = "won-consolation"
	StatusLost           Status = "lost"
)

// ParseStatus maps a status string to a Status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusWonJackpot, StatusWonConsolation, StatusLost:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusWonJackpot || s == StatusWonConsolation || s == StatusLost
}

// IsWin reports whether the status carries a prize.
func (s Status) IsWin() bool {
	return s == StatusWonJackpot || s == StatusWonConsolation
}

// TxRefs holds the deploy hashes of each on-chain step of a ticket.
type TxRefs struct {
	Entry   string // enter_lottery deploy
	Request string // randomness request
	Fulfill string // oracle fulfillment
	Settle  string // settle_lottery deploy
	Refund  string // claim_refund deploy
}

// merge fills empty fields of r from other.
func (r TxRefs) merge(other TxRefs) TxRefs {
	if r.Entry == "" {
		r.Entry = other.Entry
	}
	if r.Request == "" {
		r.Request = other.Request
	}
	if r.Fulfill == "" {
		r.Fulfill = other.Fulfill
	}
	if r.Settle == "" {
		r.Settle = other.Settle
	}
	if r.Refund == "" {
		r.Refund = other.Refund
	}
	return r
}

// Entry is one purchased lottery ticket.
type Entry struct {
	RequestID string    // Store key: deploy hash while placeholder, canonical id after
	PlayID    string    // Play sequence number ("0x12", "18"), may be a hint
	RoundID   int64     // Lottery round
	EntryDate time.Time // Purchase time, basis for the refund window
	Cost      decimal.Decimal

	Status      Status
	PrizeAmount *decimal.Decimal // CSPR, set once terminal
	SettledDate *time.Time

	// AwaitingFulfillment is true until the oracle answers (or the server
	// declares a timeout). Always false for terminal statuses.
	AwaitingFulfillment bool

	// SessionCreated marks tickets purchased by this process, as opposed to
	// tickets first seen in a backend snapshot.
	SessionCreated bool

	// IsPlaceholder is true while RequestID still holds the deploy hash.
	IsPlaceholder bool

	Fulfilled  bool
	Randomness string
	Tx         TxRefs
}

// Normalize enforces the entry invariants and returns the result.
func (e Entry) Normalize() Entry {
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.Status.IsTerminal() {
		e.AwaitingFulfillment = false
	}
	return e
}

// Prize returns the prize amount, zero when unset.
func (e Entry) Prize() decimal.Decimal {
	if e.PrizeAmount == nil {
		return decimal.Zero
	}
	return *e.PrizeAmount
}

// KnownFulfilled reports whether the oracle has answered for this ticket.
func (e Entry) KnownFulfilled() bool {
	return e.Fulfilled || e.Tx.Fulfill != ""
}

// WithLocal copies session-only knowledge from local onto a backend-derived
// entry. Backend fields always win; only empty fields are filled.
func (e Entry) WithLocal(local Entry) Entry {
	e.Tx = e.Tx.merge(local.Tx)
	e.SessionCreated = e.SessionCreated || local.SessionCreated
	e.Fulfilled = e.Fulfilled || local.Fulfilled
	if e.Randomness == "" {
		e.Randomness = local.Randomness
	}
	return e
}

// Round is the current lottery round as last reported by the backend.
type Round struct {
	RoundID        int64
	NextPlayIDHint string
	PrizePool      decimal.Decimal // CSPR
	TotalPlays     *int64
	FetchedAt      time.Time
}

const (
	// DefaultRoundID seeds placeholders before any round snapshot arrives.
	DefaultRoundID = 1

	// UnknownPlayIDHint is shown for placeholders when no hint is known.
	UnknownPlayIDHint = "0x??"
)

// NewPlaceholder creates the entry for a purchase known only by its deploy hash.
func NewPlaceholder(deployHash string, round Round, cost decimal.Decimal, now time.Time) Entry {
	roundID := round.RoundID
	if roundID == 0 {
		roundID = DefaultRoundID
	}
	playID := round.NextPlayIDHint
	if playID == "" {
		playID = UnknownPlayIDHint
	}

	return Entry{
		RequestID:           deployHash,
		PlayID:              playID,
		RoundID:             roundID,
		EntryDate:           now.UTC(),
		Cost:                cost,
		Status:              StatusPending,
		AwaitingFulfillment: true,
		SessionCreated:      true,
		IsPlaceholder:       true,
		Tx:                  TxRefs{Entry: deployHash},
	}
}

// Stats aggregates an account's tickets.
type Stats struct {
	Pending    int
	Settled    int
	Wins       int
	TotalWon   decimal.Decimal
	TotalSpent decimal.Decimal
	NetProfit  decimal.Decimal
}

// Summarize computes Stats over entries.
func Summarize(entries []Entry) Stats {
	s := Stats{
		TotalWon:   decimal.Zero,
		TotalSpent: decimal.Zero,
	}
	for _, e := range entries {
		s.TotalSpent = s.TotalSpent.Add(e.Cost)
		if e.Status == StatusPending {
			s.Pending++
			continue
		}
		s.Settled++
		if e.Status.IsWin() {
			s.Wins++
			s.TotalWon = s.TotalWon.Add(e.Prize())
		}
	}
	s.NetProfit = s.TotalWon.Sub(s.TotalSpent)
	return s
}
