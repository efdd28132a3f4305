package domain

import (
	"fmt"
	"time"
)

// OptionType is the option right.
type OptionType string

const (
	OptionTypePut  OptionType = "PE"
	OptionTypeCall OptionType = "CE"
)

// String returns the string representation of OptionType.
func (o OptionType) String() string {
	return string(o)
}

// IsValid checks if the option type is a valid value.
func (o OptionType) IsValid() bool {
	return o == OptionTypePut || o == OptionTypeCall
}

// Contract identifies a tradable option. Immutable once selected.
type Contract struct {
	Underlying string     // e.g. "BANKNIFTY"
	Strike     float64    // underlying strike
	OptionType OptionType // PE | CE
	Expiry     time.Time  // expiry date (midnight, exchange timezone)
}

// String returns a human-readable contract symbol, e.g. "BANKNIFTY 2023-09-07 44600 PE".
func (c Contract) String() string {
	return fmt.Sprintf("%s %s %g %s", c.Underlying, c.Expiry.Format("2006-01-02"), c.Strike, c.OptionType)
}
