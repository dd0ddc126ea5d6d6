package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Recipient is one (address, amount) pair queued for distribution.
type Recipient struct {
	Address common.Address
	Amount  *big.Int // wei
	Nametag string   // optional label from a CSV export
}

// ItemOutcome classifies what happened to one recipient. Every processed
// recipient lands in exactly one class.
type ItemOutcome string

const (
	OutcomeSuccess            ItemOutcome = "success"
	OutcomeFailure            ItemOutcome = "failure"
	OutcomeSkippedByOperator  ItemOutcome = "skipped_by_operator"
	OutcomeSkippedByThreshold ItemOutcome = "skipped_by_threshold"
	OutcomeAlreadySent        ItemOutcome = "already_sent"
)

// RunStats are the per-run outcome counters reported at the end of a
// distribution run. Cancelled is set when the operator halted the run; any
// recipients after the halt stay unclassified and untouched.
type RunStats struct {
	Successful         int
	Failed             int
	SkippedByOperator  int
	SkippedByThreshold int
	AlreadySent        int
	Cancelled          bool
}

// Total returns the number of classified recipients.
func (s *RunStats) Total() int {
	return s.Successful + s.Failed + s.SkippedByOperator + s.SkippedByThreshold + s.AlreadySent
}
