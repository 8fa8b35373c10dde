package workflow

import "time"

const (
	CollectionOrders        = "orders"
	CollectionLineItems     = "order_line_items"
	CollectionRelationships = "order_relationships"
	CollectionInvoices      = "invoices"
)

type Kind string

const (
	KindSubscription Kind = "subscription"
	KindOneTime      Kind = "one_time"
	KindSiblingLink  Kind = "mixed-sibling-link"
)

// Trigger identifies who or what caused a transition.
type Trigger struct {
	By    string `json:"by"`
	Notes string `json:"notes,omitempty"`
}

// Triggers used by the engine itself.
const (
	TriggerSystem     = "system"
	TriggerReconciler = "reconciler"
)

type HistoryEntry struct {
	Status         Status    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	TriggeredBy    string    `json:"triggered_by"`
	Notes          string    `json:"notes,omitempty"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is one sellable unit of work for one patient. It is mutated only
// through the Engine; status history is append-only.
type Order struct {
	ID                   string         `json:"id"`
	PatientID            string         `json:"patient_id"`
	ProviderID           string         `json:"provider_id,omitempty"`
	Kind                 Kind           `json:"kind"`
	Status               Status         `json:"status"`
	WorkflowPath         Path           `json:"workflow_path"`
	CurrentStepIndex     int            `json:"current_step_index"`
	RequiresPrescription bool           `json:"requires_prescription"`
	StatusHistory        []HistoryEntry `json:"status_history"`
	TotalAmount          float64        `json:"total_amount"`
	Currency             string         `json:"currency"`
	BundleID             string         `json:"bundle_id,omitempty"`
	SessionID            string         `json:"session_id,omitempty"`
	ShippingAddress      *Address       `json:"shipping_address,omitempty"`
	BillingAddress       *Address       `json:"billing_address,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func (o *Order) Category() Category {
	return CategoryFor(o.RequiresPrescription)
}

// Initialized reports whether the order has been placed on its path.
func (o *Order) Initialized() bool {
	return len(o.StatusHistory) > 0
}

// AtEnd reports whether the order sits on the last state of its path.
func (o *Order) AtEnd() bool {
	return o.CurrentStepIndex >= len(o.WorkflowPath)-1
}

type LineItem struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	ProductID      string    `json:"product_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPrice      float64   `json:"unit_price"`
	IncludedInPlan bool      `json:"included_in_plan"`
	CreatedAt      time.Time `json:"created_at"`
}

type RelationshipType string

const RelationshipBundledPurchase RelationshipType = "bundled_purchase"

// Relationship records that two orders were created together. Immutable.
type Relationship struct {
	ID             string           `json:"id"`
	PrimaryOrderID string           `json:"primary_order_id"`
	RelatedOrderID string           `json:"related_order_id"`
	Type           RelationshipType `json:"relationship_type"`
	CreatedAt      time.Time        `json:"created_at"`
}

type InvoiceStatus string

const (
	InvoiceOpen InvoiceStatus = "open"
	InvoicePaid InvoiceStatus = "paid"
	InvoiceVoid InvoiceStatus = "void"
)

type Invoice struct {
	ID        string        `json:"id"`
	OrderID   string        `json:"order_id"`
	PatientID string        `json:"patient_id"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Status    InvoiceStatus `json:"status"`
	DueDate   time.Time     `json:"due_date"`
	PaidAt    *time.Time    `json:"paid_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
