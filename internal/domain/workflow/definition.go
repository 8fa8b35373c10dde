// Package workflow drives telehealth orders through their category-specific
// state sequence: intake, provider review, prescription and pharmacy
// fulfilment for prescription products, payment and shipment for OTC ones.
package workflow

import "time"

type Status string

const (
	StatusConsultationPending Status = "consultation_pending"
	StatusIntakeCompleted     Status = "intake_completed"
	StatusProviderReview      Status = "provider_review"
	StatusProviderApproved    Status = "provider_approved"
	StatusPrescriptionCreated Status = "prescription_created"
	StatusPrescriptionSent    Status = "prescription_sent"
	StatusPharmacyReceived    Status = "pharmacy_received"
	StatusPharmacyFilling     Status = "pharmacy_filling"
	StatusPharmacyReady       Status = "pharmacy_ready"
	StatusPharmacyDispensed   Status = "pharmacy_dispensed"

	StatusPaymentPending   Status = "payment_pending"
	StatusPaymentCompleted Status = "payment_completed"
	StatusOrderProcessing  Status = "order_processing"
	StatusOrderShipped     Status = "order_shipped"
	StatusOrderDelivered   Status = "order_delivered"

	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusException Status = "exception"
)

// Category names the workflow variant an order follows.
type Category string

const (
	PathPrescription Category = "prescription"
	PathOTC          Category = "otc"
)

// Path is the ordered sequence of states for one category.
type Path []Status

var (
	prescriptionPath = Path{
		StatusConsultationPending,
		StatusIntakeCompleted,
		StatusProviderReview,
		StatusProviderApproved,
		StatusPrescriptionCreated,
		StatusPrescriptionSent,
		StatusPharmacyReceived,
		StatusPharmacyFilling,
		StatusPharmacyReady,
		StatusPharmacyDispensed,
		StatusCompleted,
	}
	otcPath = Path{
		StatusPaymentPending,
		StatusPaymentCompleted,
		StatusOrderProcessing,
		StatusOrderShipped,
		StatusOrderDelivered,
		StatusCompleted,
	}
)

// ResolvePath returns a fresh copy of the path for the product category.
func ResolvePath(requiresPrescription bool) Path {
	src := otcPath
	if requiresPrescription {
		src = prescriptionPath
	}
	out := make(Path, len(src))
	copy(out, src)
	return out
}

// CategoryFor maps the prescription flag to its category name.
func CategoryFor(requiresPrescription bool) Category {
	if requiresPrescription {
		return PathPrescription
	}
	return PathOTC
}

// IndexOf returns the position of s in p, or -1.
func (p Path) IndexOf(s Status) int {
	for i, st := range p {
		if st == s {
			return i
		}
	}
	return -1
}

func (p Path) Last() Status {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Expected dwell time per state, used for ETA display only.
var dwellTimes = map[Status]time.Duration{
	StatusConsultationPending: time.Hour,
	StatusIntakeCompleted:     2 * time.Hour,
	StatusProviderReview:      24 * time.Hour,
	StatusProviderApproved:    time.Hour,
	StatusPrescriptionCreated: 30 * time.Minute,
	StatusPrescriptionSent:    2 * time.Hour,
	StatusPharmacyReceived:    4 * time.Hour,
	StatusPharmacyFilling:     24 * time.Hour,
	StatusPharmacyReady:       24 * time.Hour,
	StatusPharmacyDispensed:   72 * time.Hour,
	StatusPaymentPending:      15 * time.Minute,
	StatusPaymentCompleted:    5 * time.Minute,
	StatusOrderProcessing:     24 * time.Hour,
	StatusOrderShipped:        72 * time.Hour,
	StatusOrderDelivered:      time.Hour,
}

func DwellTime(s Status) time.Duration {
	return dwellTimes[s]
}

// RemainingDwell sums the expected dwell of the state at index and every
// state after it.
func (p Path) RemainingDwell(index int) time.Duration {
	if index < 0 {
		index = 0
	}
	var total time.Duration
	for i := index; i < len(p); i++ {
		total += dwellTimes[p[i]]
	}
	return total
}

// StatusCategory buckets a state for display.
type StatusCategory string

const (
	CategoryPending    StatusCategory = "pending"
	CategoryInProgress StatusCategory = "in_progress"
	CategoryReady      StatusCategory = "ready"
	CategoryCompleted  StatusCategory = "completed"
	CategoryCancelled  StatusCategory = "cancelled"
)

var statusCategories = map[Status]StatusCategory{
	StatusConsultationPending: CategoryPending,
	StatusPaymentPending:      CategoryPending,
	StatusException:           CategoryPending,

	StatusIntakeCompleted:     CategoryInProgress,
	StatusProviderReview:      CategoryInProgress,
	StatusProviderApproved:    CategoryInProgress,
	StatusPrescriptionCreated: CategoryInProgress,
	StatusPrescriptionSent:    CategoryInProgress,
	StatusPharmacyReceived:    CategoryInProgress,
	StatusPharmacyFilling:     CategoryInProgress,
	StatusPaymentCompleted:    CategoryInProgress,
	StatusOrderProcessing:     CategoryInProgress,
	StatusOrderShipped:        CategoryInProgress,

	StatusPharmacyReady:     CategoryReady,
	StatusPharmacyDispensed: CategoryReady,
	StatusOrderDelivered:    CategoryReady,

	StatusCompleted: CategoryCompleted,
	StatusCancelled: CategoryCancelled,
}

// CategoryOf is total: unknown states fall back to pending.
func CategoryOf(s Status) StatusCategory {
	if c, ok := statusCategories[s]; ok {
		return c
	}
	return CategoryPending
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsEscape reports whether s is reachable from any non-terminal state
// outside the linear sequence.
func IsEscape(s Status) bool {
	return s == StatusCancelled || s == StatusException
}

// Known reports whether s is a state of either path or an escape state.
func Known(s Status) bool {
	_, ok := statusCategories[s]
	return ok
}

// Action is something a caller may do next with an order.
type Action string

const (
	ActionAdvance Action = "advance"
	ActionCancel  Action = "cancel"
	ActionFlag    Action = "flag_exception"
	ActionResume  Action = "resume"
)

// NextPossibleActions lists the operations valid from status on path.
func NextPossibleActions(p Path, status Status) []Action {
	switch {
	case IsTerminal(status):
		return []Action{}
	case status == StatusException:
		return []Action{ActionResume, ActionCancel}
	case p.IndexOf(status) == len(p)-1:
		return []Action{}
	}
	return []Action{ActionAdvance, ActionCancel, ActionFlag}
}
