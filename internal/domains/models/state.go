package models

import "fmt"

// State is a registered domain's lifecycle position. Transitions are driven
// by registry-confirmed results or the expiry clock, never by local intent.
type State string

const (
	StateDnsNeeded State = "dns_needed"
	StateReady     State = "ready"
	StateOnHold    State = "on_hold"
	StateExpired   State = "expired"
	StateDeleted   State = "deleted"
)

var knownStates = map[State]bool{
	StateDnsNeeded: true,
	StateReady:     true,
	StateOnHold:    true,
	StateExpired:   true,
	StateDeleted:   true,
}

// Event is a lifecycle trigger.
type Event string

const (
	// EventNameserversConfirmed fires when registry info shows at least one
	// delegated nameserver.
	EventNameserversConfirmed Event = "nameservers_confirmed"
	// EventNameserversRemoved fires when registry info shows none.
	EventNameserversRemoved Event = "nameservers_removed"
	// EventHoldSet and EventHoldLifted mirror the registry's hold statuses.
	EventHoldSet    Event = "hold_set"
	EventHoldLifted Event = "hold_lifted"
	// EventRenewed fires on a confirmed renewal.
	EventRenewed Event = "renewed"
	// EventExpired fires when the expiry boundary passes.
	EventExpired Event = "expired"
	// EventRedemptionElapsed fires when the post-expiry grace window closes.
	EventRedemptionElapsed Event = "redemption_elapsed"
	// EventDeleted fires on a confirmed registry delete.
	EventDeleted Event = "deleted"
)

// Transition is one allowed edge in the domain lifecycle. Restore means the
// target is the state the domain held before it was put on hold, not To.
type Transition struct {
	From    State
	Event   Event
	To      State
	Restore bool
}

var transitionsTable = []Transition{
	{From: StateDnsNeeded, Event: EventNameserversConfirmed, To: StateReady},
	{From: StateDnsNeeded, Event: EventRenewed, To: StateDnsNeeded},
	{From: StateDnsNeeded, Event: EventHoldSet, To: StateOnHold},
	{From: StateDnsNeeded, Event: EventExpired, To: StateExpired},
	{From: StateDnsNeeded, Event: EventDeleted, To: StateDeleted},

	{From: StateReady, Event: EventNameserversConfirmed, To: StateReady},
	{From: StateReady, Event: EventNameserversRemoved, To: StateDnsNeeded},
	{From: StateReady, Event: EventRenewed, To: StateReady},
	{From: StateReady, Event: EventHoldSet, To: StateOnHold},
	{From: StateReady, Event: EventExpired, To: StateExpired},
	{From: StateReady, Event: EventDeleted, To: StateDeleted},

	{From: StateOnHold, Event: EventHoldLifted, Restore: true},
	{From: StateOnHold, Event: EventExpired, To: StateExpired},
	{From: StateOnHold, Event: EventDeleted, To: StateDeleted},

	{From: StateExpired, Event: EventRenewed, To: StateReady},
	{From: StateExpired, Event: EventRedemptionElapsed, To: StateDeleted},
	{From: StateExpired, Event: EventDeleted, To: StateDeleted},
}

// TransitionFor returns the allowed edge for a state and event.
func TransitionFor(from State, ev Event) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// validateTable rejects malformed edges before the process takes traffic.
func validateTable() error {
	seen := map[string]bool{}
	for _, tr := range transitionsTable {
		if !knownStates[tr.From] {
			return fmt.Errorf("transition from unknown state %q", tr.From)
		}
		if tr.Restore {
			if tr.From != StateOnHold {
				return fmt.Errorf("restore edge from %q; only holds restore", tr.From)
			}
		} else if !knownStates[tr.To] {
			return fmt.Errorf("transition to unknown state %q", tr.To)
		}
		if tr.To == StateDeleted && tr.Restore {
			return fmt.Errorf("restore edge cannot target a terminal state")
		}
		key := string(tr.From) + "|" + string(tr.Event)
		if seen[key] {
			return fmt.Errorf("duplicate edge %s on %s", tr.Event, tr.From)
		}
		seen[key] = true
	}
	return nil
}

func init() {
	if err := validateTable(); err != nil {
		panic("domains: invalid lifecycle table: " + err.Error())
	}
}
