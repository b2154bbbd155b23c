// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// EventType names a business event the distribution engine reacts to.
type EventType string

// Known business events.
const (
	EventPurchaseConfirmed  EventType = "purchase_confirmed"
	EventInspectionComplete EventType = "inspection_complete"
	EventInvoiceCompleted   EventType = "invoice_completed"
	EventDeviceSold         EventType = "device_sold"
	EventWarrantyClaim      EventType = "warranty_claim"
	EventStockLow           EventType = "stock_low"
	EventDailyTasks         EventType = "daily_tasks"
)

// EventTypes lists every known event type in declaration order.
func EventTypes() []EventType {
	return []EventType{
		EventPurchaseConfirmed,
		EventInspectionComplete,
		EventInvoiceCompleted,
		EventDeviceSold,
		EventWarrantyClaim,
		EventStockLow,
		EventDailyTasks,
	}
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPurchaseConfirmed, EventInspectionComplete, EventInvoiceCompleted,
		EventDeviceSold, EventWarrantyClaim, EventStockLow, EventDailyTasks:
		return true
	}
	return false
}

// ParseEventType converts s into a known EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}

// Payload is the opaque body of a business event.
type Payload map[string]any

// Event is an immutable business event. The bus stamps ID and Timestamp.
type Event struct {
	ID        string
	Type      EventType
	Payload   Payload
	Timestamp time.Time
}
