package api

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/drawsync/internal/model"
	"github.com/rickgao/drawsync/internal/money"
)

// ParseTimestamp parses an ISO 8601 backend timestamp.
// Returns the zero time for empty or invalid input.
func ParseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}

	return t.UTC()
}

// ToEntry converts a backend play to a ticket entry. Malformed identifier and
// amount fields are logged and left empty; conversion never fails.
func (p Play) ToEntry(ticketCost decimal.Decimal, logger *slog.Logger) model.Entry {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("request_id", p.RequestID)

	e := model.Entry{
		RequestID: p.RequestID,
		PlayID:    string(p.PlayID),
		RoundID:   p.RoundID,
		EntryDate: ParseTimestamp(p.Timestamp),
		Cost:      ticketCost,
		Tx: model.TxRefs{
			Entry:  p.EntryDeployHash,
			Settle: p.SettleDeployHash,
		},
	}

	if e.PlayID != "" {
		if _, err := model.ParsePlayID(e.PlayID); err != nil {
			log.Warn("ignoring malformed play id", "play_id", e.PlayID, "error", err)
			e.PlayID = ""
		}
	}

	status, prizeMotes := p.classify(log)
	e.Status = status
	if prizeMotes != nil {
		cspr := money.MotesToCSPR(*prizeMotes)
		e.PrizeAmount = &cspr
	}

	if status.IsTerminal() {
		if t := ParseTimestamp(p.SettledAt); !t.IsZero() {
			e.SettledDate = &t
		}
	}

	return e.Normalize()
}

// classify maps the backend status to a ticket status and the prize in
// motes. Prize comparisons happen on the integer mote form.
func (p Play) classify(log *slog.Logger) (model.Status, *decimal.Decimal) {
	jackpot := parseAmount(log, "jackpot_amount", p.JackpotAmount)
	prize := parseAmount(log, "prize_amount", p.PrizeAmount)

	if st, ok := model.ParseStatus(strings.ToLower(p.Status)); ok {
		switch st {
		case model.StatusWonJackpot:
			if jackpot != nil {
				return st, jackpot
			}
			return st, prize
		case model.StatusWonConsolation:
			return st, prize
		}
		return st, nil
	}

	if strings.ToLower(p.Status) != PlayStatusSettled {
		if p.Status != PlayStatusPending {
			log.Warn("unknown play status, treating as pending", "status", p.Status)
		}
		return model.StatusPending, nil
	}

	switch {
	case p.IsJackpot:
		return model.StatusWonJackpot, jackpot
	case prize != nil && prize.IsPositive():
		return model.StatusWonConsolation, prize
	default:
		return model.StatusLost, nil
	}
}

func parseAmount(log *slog.Logger, field string, raw FlexString) *decimal.Decimal {
	if raw == "" {
		return nil
	}
	d, err := money.ParseMotes(string(raw))
	if err != nil {
		log.Warn("ignoring malformed amount", "field", field, "value", string(raw), "error", err)
		return nil
	}
	return &d
}

// ToRound converts the lottery snapshot to a Round. The prize pool is the
// current jackpot, else the round's final jackpot, else zero.
func (l LotteryCurrent) ToRound(now time.Time, logger *slog.Logger) model.Round {
	if logger == nil {
		logger = slog.Default()
	}

	r := model.Round{
		RoundID:        model.DefaultRoundID,
		NextPlayIDHint: model.UnknownPlayIDHint,
		PrizePool:      decimal.Zero,
		FetchedAt:      now.UTC(),
	}

	var pool FlexString
	if l.Stats != nil {
		pool = l.Stats.CurrentJackpot
	}

	if l.Round != nil {
		if l.Round.RoundID > 0 {
			r.RoundID = l.Round.RoundID
		}
		if l.Round.TotalPlays != nil {
			total := *l.Round.TotalPlays
			r.TotalPlays = &total
			r.NextPlayIDHint = "0x" + strconv.FormatInt(total+1, 16)
		}
		if pool == "" {
			pool = l.Round.FinalJackpot
		}
	}

	if motes := parseAmount(logger, "jackpot", pool); motes != nil {
		r.PrizePool = money.MotesToCSPR(*motes)
	}

	return r
}
