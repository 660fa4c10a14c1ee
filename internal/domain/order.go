package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order is one fulfillment unit inside a transaction: a set of purchased
// line items moving from an origin store to a destination, with a status
// and an append-only status history.
type Order struct {
	ID            string            `json:"id"`
	Destination   Location          `json:"destination"`
	Origin        Location          `json:"origin"`
	Products      []ProductPurchase `json:"products"`
	Status        OrderStatus       `json:"status"`
	StatusHistory []OrderState      `json:"status_history"`
	OrderNotes    []Note            `json:"order_notes"`
	Reference     string            `json:"reference"`
	CreationDate  time.Time         `json:"creation_date"`
	Discount      DiscountValue     `json:"discount"`
}

// OrderState is one entry in an order's audit trail.
type OrderState struct {
	Date   time.Time   `json:"date"`
	Status OrderStatus `json:"status"`
}

// SetStatus replaces the current status and appends the transition to the
// history. History entries are never rewritten or removed; any status may
// follow any other.
func (o *Order) SetStatus(status OrderStatus, at time.Time) {
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, OrderState{Date: at, Status: status})
}

// ProductPurchase is a single line item. Instances track the pick progress
// of each physical unit being gathered for the order.
type ProductPurchase struct {
	ID          string            `json:"id"`
	ProductCode string            `json:"product_code"`
	ProductSKU  string            `json:"product_sku"`
	Name        string            `json:"product_name"`
	Quantity    float64           `json:"quantity"`
	UnitCost    decimal.Decimal   `json:"product_cost"`
	Discount    DiscountValue     `json:"discount"`
	Tags        []string          `json:"tags,omitempty"`
	Instances   []ProductInstance `json:"instances,omitempty"`
}

type ProductInstance struct {
	ID         string     `json:"id"`
	PickStatus PickStatus `json:"fulfillment_status"`
}

type OrderStatusKind string

const (
	StatusQueued     OrderStatusKind = "queued"
	StatusTransit    OrderStatusKind = "transit"
	StatusProcessing OrderStatusKind = "processing"
	StatusInStore    OrderStatusKind = "in_store"
	StatusFulfilled  OrderStatusKind = "fulfilled"
	StatusFailed     OrderStatusKind = "failed"
)

// OrderStatus is a tagged variant: transit carries shipping metadata,
// processing carries the time work began, failed carries a reason.
type OrderStatus struct {
	Kind      OrderStatusKind
	Transit   *TransitInformation
	StartedAt *time.Time
	Reason    string
}

type TransitInformation struct {
	ShippingCompany ContactInformation `json:"shipping_company"`
	QueryURL        string             `json:"query_url"`
	TrackingCode    string             `json:"tracking_code"`
}

func Queued() OrderStatus { return OrderStatus{Kind: StatusQueued} }

func InTransit(info TransitInformation) OrderStatus {
	return OrderStatus{Kind: StatusTransit, Transit: &info}
}

func ProcessingSince(at time.Time) OrderStatus {
	return OrderStatus{Kind: StatusProcessing, StartedAt: &at}
}

func InStore() OrderStatus { return OrderStatus{Kind: StatusInStore} }

func Fulfilled() OrderStatus { return OrderStatus{Kind: StatusFulfilled} }

func FailedStatus(reason string) OrderStatus {
	return OrderStatus{Kind: StatusFailed, Reason: reason}
}

// Terminal reports whether no further fulfillment work is expected.
func (s OrderStatus) Terminal() bool {
	return s.Kind == StatusFulfilled || s.Kind == StatusFailed
}

type orderStatusJSON struct {
	Type      OrderStatusKind     `json:"type"`
	Transit   *TransitInformation `json:"transit,omitempty"`
	StartedAt *time.Time          `json:"started_at,omitempty"`
	Reason    string              `json:"reason,omitempty"`
}

func (s OrderStatus) MarshalJSON() ([]byte, error) {
	kind := s.Kind
	if kind == "" {
		kind = StatusQueued
	}
	return json.Marshal(orderStatusJSON{
		Type:      kind,
		Transit:   s.Transit,
		StartedAt: s.StartedAt,
		Reason:    s.Reason,
	})
}

func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw orderStatusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case StatusTransit:
		if raw.Transit == nil {
			return fmt.Errorf("order status %q requires transit information", raw.Type)
		}
	case StatusProcessing:
		if raw.StartedAt == nil {
			return fmt.Errorf("order status %q requires a start time", raw.Type)
		}
	case StatusFailed:
		if raw.Reason == "" {
			return fmt.Errorf("order status %q requires a reason", raw.Type)
		}
	case StatusQueued, StatusInStore, StatusFulfilled:
	default:
		return fmt.Errorf("unknown order status %q", raw.Type)
	}
	s.Kind = raw.Type
	s.Transit = raw.Transit
	s.StartedAt = raw.StartedAt
	s.Reason = raw.Reason
	return nil
}

// PickStatus is the fulfillment progress of a single line-item instance.
type PickStatus string

const (
	PickPending    PickStatus = "pending"
	PickProcessing PickStatus = "processing"
	PickPicked     PickStatus = "picked"
	PickUncertain  PickStatus = "uncertain"
	PickFailed     PickStatus = "failed"
)

func (p PickStatus) IsValid() bool {
	switch p {
	case PickPending, PickProcessing, PickPicked, PickUncertain, PickFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo validates a pick-status change. Picked and failed are
// terminal; uncertain and failed are reachable from any non-terminal state.
func (p PickStatus) CanTransitionTo(next PickStatus) bool {
	switch p {
	case PickPending:
		return next == PickProcessing || next == PickUncertain || next == PickFailed
	case PickProcessing:
		return next == PickPicked || next == PickUncertain || next == PickFailed
	case PickUncertain:
		return next == PickProcessing || next == PickPicked || next == PickFailed
	case PickPicked, PickFailed:
		return false
	default:
		return false
	}
}
