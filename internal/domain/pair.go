package domain

import "fmt"

// Pair identifies the two tokens of a liquidity pool. To is the quote side
// used when valuing the position.
type Pair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
