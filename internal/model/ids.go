package model

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ErrMalformedID is returned when an identifier fails numeric parsing.
var ErrMalformedID = errors.New("malformed identifier")

// maxCanonicalLen bounds the length of a canonical request id ("0x" + hex).
// Deploy hashes are 64 hex characters and never fit.
const maxCanonicalLen = 10

var maxU256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// IsCanonicalID reports whether id is a short backend-assigned request id
// such as "0x1f". Deploy hashes and other placeholders return false.
func IsCanonicalID(id string) bool {
	if len(id) >= maxCanonicalLen || !hasHexPrefix(id) {
		return false
	}
	digits := id[2:]
	if digits == "" {
		return false
	}
	_, err := strconv.ParseUint(digits, 16, 64)
	return err == nil
}

// ParsePlayID parses a play or request sequence number, hex with a 0x
// prefix or plain decimal.
func ParsePlayID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	var (
		n   uint64
		err error
	)
	if hasHexPrefix(s) {
		n, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		n, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedID, s)
	}
	return n, nil
}

// ParseRequestID normalizes a request id into a U256 value for contract
// arguments. Accepts "0x"-prefixed hex, plain decimal, or bare hex.
func ParseRequestID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty request id", ErrMalformedID)
	}

	var (
		n  = new(big.Int)
		ok bool
	)
	switch {
	case hasHexPrefix(s):
		_, ok = n.SetString(s[2:], 16)
	case isDecimal(s):
		_, ok = n.SetString(s, 10)
	default:
		_, ok = n.SetString(s, 16)
	}
	if !ok || n.Sign() < 0 || n.Cmp(maxU256) > 0 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedID, s)
	}
	return n, nil
}

func hasHexPrefix(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

func isDecimal(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
