package logging

import "log/slog"

// Common field names for consistent logging across SDK components.
const (
	FieldComponent = "component"
	FieldEventID   = "event_id"
	FieldItemType  = "item_type"
	FieldOperation = "operation"
	FieldReason    = "reason"
	FieldCategory  = "category"
	FieldQuantity  = "quantity"
	FieldBytes     = "bytes"
	FieldError     = "error"
)

// Component returns a slog attribute naming the SDK component.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// ItemType returns a slog attribute for an envelope item type.
func ItemType(t string) slog.Attr {
	return slog.String(FieldItemType, t)
}

// Operation returns a slog attribute for a native bridge operation.
func Operation(op string) slog.Attr {
	return slog.String(FieldOperation, op)
}

// Reason returns a slog attribute for a discard reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Category returns a slog attribute for a data category.
func Category(category string) slog.Attr {
	return slog.String(FieldCategory, category)
}

// Quantity returns a slog attribute for an outcome quantity.
func Quantity(n int64) slog.Attr {
	return slog.Int64(FieldQuantity, n)
}

// Bytes returns a slog attribute for a payload size in bytes.
func Bytes(n int) slog.Attr {
	return slog.Int(FieldBytes, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
