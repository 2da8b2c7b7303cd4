package api

import (
	"strings"
)

// FlexString holds a JSON value the backend may encode as a string or a
// number. null decodes to "".
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	*f = FlexString(strings.Trim(s, `"`))
	return nil
}

// Backend play statuses.
const (
	PlayStatusPending = "pending"
	PlayStatusSettled = "settled"
)

// Play is a ticket record as reported by the backend.
type Play struct {
	PlayID           FlexString `json:"play_id"`
	RequestID        string     `json:"request_id"`
	RoundID          int64      `json:"round_id"`
	Player           string     `json:"player"`
	Timestamp        string     `json:"timestamp"`
	Status           string     `json:"status"`
	EntryDeployHash  string     `json:"entry_deploy_hash"`
	PrizeAmount      FlexString `json:"prize_amount,omitempty"`
	IsJackpot        bool       `json:"is_jackpot,omitempty"`
	JackpotAmount    FlexString `json:"jackpot_amount,omitempty"`
	SettledAt        string     `json:"settled_at,omitempty"`
	SettleDeployHash string     `json:"settle_deploy_hash,omitempty"`
	CreatedAt        string     `json:"created_at,omitempty"`
	UpdatedAt        string     `json:"updated_at,omitempty"`
}

// PlaysResponse is the response from GET /player/{account}/plays.
type PlaysResponse struct {
	Plays []Play `json:"plays"`
}

// LotteryRound is the round block of GET /lottery/current.
type LotteryRound struct {
	RoundID      int64      `json:"round_id"`
	TotalPlays   *int64     `json:"total_plays,omitempty"`
	FinalJackpot FlexString `json:"final_jackpot,omitempty"`
}

// LotteryStats is the stats block of GET /lottery/current.
type LotteryStats struct {
	CurrentJackpot FlexString `json:"current_jackpot,omitempty"`
}

// LotteryCurrent is the response from GET /lottery/current.
type LotteryCurrent struct {
	Round *LotteryRound `json:"round"`
	Stats *LotteryStats `json:"stats"`
}
