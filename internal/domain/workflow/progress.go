package workflow

import (
	"math"
	"time"
)

// OrderView is an order with its read-only progress projection.
type OrderView struct {
	*Order
	Progress Progress `json:"progress"`
}

type Progress struct {
	Category            Category       `json:"category"`
	Percentage          float64        `json:"percentage"`
	StatusCategory      StatusCategory `json:"status_category"`
	EstimatedCompletion *time.Time     `json:"estimated_completion,omitempty"`
	NextPossibleActions []Action       `json:"next_possible_actions"`
}

// ProgressOf projects o at now. Terminal and exception orders have no
// estimated completion.
func ProgressOf(o *Order, now time.Time) Progress {
	p := Progress{
		Category:            o.Category(),
		StatusCategory:      CategoryOf(o.Status),
		NextPossibleActions: NextPossibleActions(o.WorkflowPath, o.Status),
	}
	if n := len(o.WorkflowPath); n > 0 {
		pct := float64(o.CurrentStepIndex+1) / float64(n) * 100
		p.Percentage = math.Round(pct*100) / 100
	}
	if !IsTerminal(o.Status) && o.Status != StatusException {
		eta := now.Add(o.WorkflowPath.RemainingDwell(o.CurrentStepIndex))
		p.EstimatedCompletion = &eta
	}
	return p
}
