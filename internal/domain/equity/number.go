package equity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RawNumber holds an extracted numeric field as the extractor produced it: a JSON
// number, a formatted string such as "1,000,000" or "$0.001", or junk like "unknown".
type RawNumber struct {
	raw     string
	present bool
}

// Num builds a RawNumber from literal text.
func Num(s string) RawNumber {
	return RawNumber{raw: s, present: true}
}

func (n RawNumber) IsEmpty() bool { return !n.present || strings.TrimSpace(n.raw) == "" }
func (n RawNumber) Raw() string   { return n.raw }

// Decimal parses the value after stripping currency symbols, grouping commas and spaces.
func (n RawNumber) Decimal() (decimal.Decimal, error) {
	if n.IsEmpty() {
		return decimal.Zero, fmt.Errorf("missing value")
	}
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "", "_", "").Replace(strings.TrimSpace(n.raw))
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("non-numeric value %q", n.raw)
	}
	return d, nil
}

func (n RawNumber) MarshalJSON() ([]byte, error) {
	if !n.present {
		return []byte("null"), nil
	}
	if d, err := n.Decimal(); err == nil {
		return []byte(d.String()), nil
	}
	return json.Marshal(n.raw)
}

func (n *RawNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = RawNumber{}
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = RawNumber{raw: s, present: true}
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*n = RawNumber{raw: string(b), present: true}
	default:
		*n = RawNumber{raw: string(b), present: true}
	}
	return nil
}

// firstPresent returns the first non-empty number, or the last candidate.
func firstPresent(candidates ...RawNumber) RawNumber {
	for _, c := range candidates {
		if !c.IsEmpty() {
			return c
		}
	}
	if len(candidates) == 0 {
		return RawNumber{}
	}
	return candidates[len(candidates)-1]
}
