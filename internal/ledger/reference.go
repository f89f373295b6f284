package ledger

import "github.com/oklog/ulid/v2"

// NewReference returns a unique, time-ordered entry reference
func NewReference() string {
	return "TX" + ulid.Make().String()
}
