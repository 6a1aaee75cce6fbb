package tvm

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Contract events the tracker waits for.
const (
	// EventNewEventContract is emitted by an event configuration when it deploys an event
	// contract. Data: address.
	EventNewEventContract = "NewEventContract"
	// EventOutgoingTransfer is emitted by a proxy when tokens leave the TVM chain.
	// Data: token, amount, recipient, eventContract.
	EventOutgoingTransfer = "OutgoingTransfer"
	// EventProcessorDeployed is emitted by a credit factory. Data: processor, eventContract.
	EventProcessorDeployed = "ProcessorDeployed"
)

// Transaction is a TVM transaction as reported by the gateway, with the contract events
// emitted by its message tree already decoded.
type Transaction struct {
	Hash            string  `mapstructure:"hash"`
	Account         string  `mapstructure:"account"`
	Lt              uint64  `mapstructure:"lt"`
	Now             int64   `mapstructure:"now"`
	Aborted         bool    `mapstructure:"aborted"`
	InMessageSource string  `mapstructure:"inMessageSource"`
	Events          []Event `mapstructure:"events"`
}

// Event is a decoded contract event.
type Event struct {
	Contract string         `mapstructure:"contract"`
	Name     string         `mapstructure:"name"`
	Data     map[string]any `mapstructure:"data"`
}

// Event returns the first event named name.
func (t Transaction) Event(name string) (Event, bool) {
	for _, ev := range t.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return Event{}, false
}

// String returns the string form of a data field, or "".
func (e Event) String(field string) string {
	v, ok := e.Data[field]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// ContractState is the account state of a contract.
type ContractState struct {
	Address  string `mapstructure:"address"`
	Deployed bool   `mapstructure:"deployed"`
	LastLt   uint64 `mapstructure:"lastLt"`
	Balance  string `mapstructure:"balance"`
}

// EventStatus mirrors the status register of a bridge event contract.
type EventStatus uint8

const (
	EventInitializing EventStatus = iota
	EventPending
	EventConfirmed
	EventRejected
)

func (s EventStatus) String() string {
	switch s {
	case EventInitializing:
		return "initializing"
	case EventPending:
		return "pending"
	case EventConfirmed:
		return "confirmed"
	case EventRejected:
		return "rejected"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// EventDetails is the getDetails output of a bridge event contract.
type EventDetails struct {
	Status        EventStatus `mapstructure:"status"`
	Confirms      []string    `mapstructure:"confirms"`
	Rejects       []string    `mapstructure:"rejects"`
	RequiredVotes int         `mapstructure:"requiredVotes"`
	// Recipient is the destination-side address the event pays out to.
	Recipient string `mapstructure:"recipient"`
	// Payload and Signatures are set on events relayed towards an EVM vault.
	Payload    string   `mapstructure:"payload"`
	Signatures []string `mapstructure:"signatures"`
}

// Decode maps a gateway result onto out. Gateway integers arrive as strings, so the decoder
// accepts weakly typed input.
func Decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("failed to decode gateway result: %w", err)
	}
	return nil
}

// SameAddress compares two raw TVM addresses ignoring case.
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
