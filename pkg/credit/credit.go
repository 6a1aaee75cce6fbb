// Package credit mirrors the state register of a credit processor, the TVM contract that
// executes a gas-less transfer by swapping part of the deposit for destination gas.
package credit

import (
	"fmt"
	"strconv"
	"time"
)

// Status is the processor state register. The order matches the contract enum.
type Status uint8

const (
	StatusPending Status = iota
	StatusEventNotDeployed
	StatusEventDeployInProgress
	StatusEventConfirmed
	StatusEventRejected
	StatusCheckingAmount
	StatusCalculateSwap
	StatusSwapInProgress
	StatusSwapFailed
	StatusSwapUnknown
	StatusUnwrapInProgress
	StatusUnwrapFailed
	StatusProcessRequiresGas
	StatusProcessed
	StatusCancelled
)

var statusNames = [...]string{
	"Pending",
	"EventNotDeployed",
	"EventDeployInProgress",
	"EventConfirmed",
	"EventRejected",
	"CheckingAmount",
	"CalculateSwap",
	"SwapInProgress",
	"SwapFailed",
	"SwapUnknown",
	"UnwrapInProgress",
	"UnwrapFailed",
	"ProcessRequiresGas",
	"Processed",
	"Cancelled",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText accepts a status name or its register value.
func (s *Status) UnmarshalText(b []byte) error {
	name := string(b)
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	v, err := strconv.ParseUint(name, 10, 8)
	if err != nil || int(v) >= len(statusNames) {
		return fmt.Errorf("unknown processor status %q", name)
	}
	*s = Status(v)
	return nil
}

// EventConfirmed reports whether the processor saw its bridge event confirmed.
func (s Status) EventConfirmed() bool {
	return s >= StatusEventConfirmed && s != StatusEventRejected
}

// Failed reports whether the processor stopped on a swap or unwrap failure.
func (s Status) Failed() bool {
	switch s {
	case StatusSwapFailed, StatusSwapUnknown, StatusUnwrapFailed:
		return true
	}
	return false
}

// Final reports whether the processor can no longer change state.
func (s Status) Final() bool { return s == StatusProcessed || s == StatusCancelled }

// State is the published view of a processor.
type State struct {
	Status      Status     `json:"status"`
	TTL         *time.Time `json:"ttl,omitempty"`
	Deployed    bool       `json:"deployed"`
	IsExpired   bool       `json:"isExpired"`
	IsOutdated  bool       `json:"isOutdated"`
	IsCancelled bool       `json:"isCancelled"`
	IsProcessed bool       `json:"isProcessed"`
}

// Details is the getDetails output of a processor.
type Details struct {
	State    Status `mapstructure:"state"`
	Deadline int64  `mapstructure:"deadline"`
}

// Expired reports whether the TTL passed. The TTL is a hard cutoff: now == TTL is expired.
func Expired(ttl *time.Time, now time.Time) bool {
	return ttl != nil && !now.Before(*ttl)
}

// Outdated reports whether a deposit has been confirmed long enough that its processor
// should have been deployed already.
func Outdated(confirmations, required uint64, prepareConfirmed bool) bool {
	return !prepareConfirmed && required > 0 && confirmations > required*3
}
