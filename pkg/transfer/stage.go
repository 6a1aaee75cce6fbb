package transfer

import (
	"time"
)

// Stage names one step of a transfer. Stages run in the order of Stages.
type Stage string

const (
	StagePrepare  Stage = "prepare"
	StageTransfer Stage = "transfer"
	StageEvent    Stage = "event"
	StageRelease  Stage = "release"
)

// Stages lists the stages in execution order.
var Stages = [...]Stage{StagePrepare, StageTransfer, StageEvent, StageRelease}

// Status is the progress of one stage.
type Status string

const (
	StatusDisabled  Status = "disabled"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusConfirmed, StatusRejected:
		return 2
	}
	return 0
}

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool { return s.rank() == 2 }

// StageState is the observable state of one stage.
type StageState struct {
	Status                Status     `json:"status"`
	Skipped               bool       `json:"skipped,omitempty"`
	Confirmations         uint64     `json:"confirmations,omitempty"`
	RequiredConfirmations uint64     `json:"requiredConfirmations,omitempty"`
	IsOutdated            bool       `json:"isOutdated,omitempty"`
	IsDeployed            *bool      `json:"isDeployed,omitempty"`
	IsDeploying           bool       `json:"isDeploying,omitempty"`
	TTL                   *time.Time `json:"ttl,omitempty"`
	WrongNetwork          bool       `json:"wrongNetwork,omitempty"`
	TxID                  string     `json:"txId,omitempty"`
	Note                  string     `json:"note,omitempty"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Done reports whether the next stage may start.
func (s StageState) Done() bool { return s.Skipped || s.Status.Terminal() }

// Observation is one report from a stage tracker. Zero fields leave the state untouched,
// except Status which must always be set.
type Observation struct {
	Status                Status
	Confirmations         uint64
	RequiredConfirmations uint64
	IsOutdated            *bool
	IsDeployed            *bool
	IsDeploying           *bool
	TTL                   *time.Time
	TxID                  string
	Note                  string
}

// Pending builds a pending observation.
func Pending() Observation { return Observation{Status: StatusPending} }

// Confirmed builds a confirmed observation carrying the transaction that settled the stage.
func Confirmed(txID string) Observation { return Observation{Status: StatusConfirmed, TxID: txID} }

// Rejected builds a rejected observation with the remote reason.
func Rejected(note string) Observation { return Observation{Status: StatusRejected, Note: note} }

// Apply folds o into the state. Regressions and changes to a terminal or skipped state are
// refused. It reports whether anything changed.
func (s *StageState) Apply(o Observation, now time.Time) bool {
	if s.Done() || o.Status.rank() < s.Status.rank() {
		return false
	}

	next := *s
	next.Status = o.Status
	if o.Confirmations > next.Confirmations {
		next.Confirmations = o.Confirmations
	}
	if o.RequiredConfirmations != 0 && next.RequiredConfirmations == 0 {
		next.RequiredConfirmations = o.RequiredConfirmations
	}
	if o.IsOutdated != nil {
		next.IsOutdated = *o.IsOutdated
	}
	if o.IsDeployed != nil {
		v := *o.IsDeployed
		next.IsDeployed = &v
	}
	if o.IsDeploying != nil {
		next.IsDeploying = *o.IsDeploying
	}
	if o.TTL != nil {
		ttl := *o.TTL
		next.TTL = &ttl
	}
	if o.TxID != "" {
		next.TxID = o.TxID
	}
	if o.Note != "" {
		next.Note = o.Note
	}
	if next.Status.Terminal() {
		next.IsDeploying = false
	}

	if equalState(*s, next) {
		return false
	}
	next.UpdatedAt = now
	*s = next
	return true
}

// skip marks a disabled stage as not part of the pipeline.
func (s *StageState) skip(now time.Time) bool {
	if s.Status != StatusDisabled || s.Skipped {
		return false
	}
	s.Skipped = true
	s.UpdatedAt = now
	return true
}

func equalState(a, b StageState) bool {
	if a.IsDeployed == nil || b.IsDeployed == nil {
		if a.IsDeployed != b.IsDeployed {
			return false
		}
	} else if *a.IsDeployed != *b.IsDeployed {
		return false
	}
	if a.TTL == nil || b.TTL == nil {
		if a.TTL != b.TTL {
			return false
		}
	} else if !a.TTL.Equal(*b.TTL) {
		return false
	}
	return a.Status == b.Status &&
		a.Confirmations == b.Confirmations &&
		a.RequiredConfirmations == b.RequiredConfirmations &&
		a.IsOutdated == b.IsOutdated &&
		a.IsDeploying == b.IsDeploying &&
		a.WrongNetwork == b.WrongNetwork &&
		a.TxID == b.TxID &&
		a.Note == b.Note
}

func boolPtr(v bool) *bool { return &v }
