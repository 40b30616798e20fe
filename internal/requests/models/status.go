package models

import "fmt"

// Status is the review state of a domain request.
type Status string

const (
	StatusStarted      Status = "started"
	StatusSubmitted    Status = "submitted"
	StatusInReview     Status = "in_review"
	StatusActionNeeded Status = "action_needed"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusWithdrawn    Status = "withdrawn"
	StatusIneligible   Status = "ineligible"
)

var knownStatuses = map[Status]bool{
	StatusStarted:      true,
	StatusSubmitted:    true,
	StatusInReview:     true,
	StatusActionNeeded: true,
	StatusApproved:     true,
	StatusRejected:     true,
	StatusWithdrawn:    true,
	StatusIneligible:   true,
}

// Action is a requester or reviewer action that moves a request through
// the review graph.
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionBeginReview    Action = "begin_review"
	ActionRequestChanges Action = "request_changes"
	ActionResolve        Action = "resolve"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionWithdraw       Action = "withdraw"
	ActionReopen         Action = "reopen"
	ActionMarkIneligible Action = "mark_ineligible"
)

// Transition is one edge in the review graph.
type Transition struct {
	From   Status
	Action Action
	To     Status
}

// transitionsTable is the full review graph. Approval durability is the
// service's concern; the table only says the edge exists. Rejected is not
// terminal: a reviewer can reopen it back to Submitted.
var transitionsTable = []Transition{
	{From: StatusStarted, Action: ActionSubmit, To: StatusSubmitted},

	{From: StatusSubmitted, Action: ActionBeginReview, To: StatusInReview},
	{From: StatusSubmitted, Action: ActionWithdraw, To: StatusWithdrawn},

	{From: StatusInReview, Action: ActionRequestChanges, To: StatusActionNeeded},
	{From: StatusInReview, Action: ActionApprove, To: StatusApproved},
	{From: StatusInReview, Action: ActionReject, To: StatusRejected},
	{From: StatusInReview, Action: ActionMarkIneligible, To: StatusIneligible},
	{From: StatusInReview, Action: ActionWithdraw, To: StatusWithdrawn},

	{From: StatusActionNeeded, Action: ActionResolve, To: StatusInReview},
	{From: StatusActionNeeded, Action: ActionWithdraw, To: StatusWithdrawn},

	{From: StatusRejected, Action: ActionReopen, To: StatusSubmitted},
}

// TransitionFor returns the edge for (from, action), or false when the
// graph has no such edge.
func TransitionFor(from Status, action Action) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Action == action {
			return tr, true
		}
	}
	return Transition{}, false
}

func validateTable(table []Transition) error {
	seen := make(map[string]bool, len(table))
	for _, tr := range table {
		if !knownStatuses[tr.From] {
			return fmt.Errorf("transition from unknown status %q", tr.From)
		}
		if !knownStatuses[tr.To] {
			return fmt.Errorf("transition to unknown status %q", tr.To)
		}
		key := string(tr.From) + "/" + string(tr.Action)
		if seen[key] {
			return fmt.Errorf("duplicate transition %s", key)
		}
		seen[key] = true
	}
	return nil
}

func init() {
	if err := validateTable(transitionsTable); err != nil {
		panic(fmt.Sprintf("requests: invalid transition table: %v", err))
	}
}
