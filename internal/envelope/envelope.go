// Package envelope builds the length-prefixed multi-item wire format handed to
// the native delivery layer.
//
// Wire layout:
//
//	{envelope header JSON}\n
//	{item header JSON}\n
//	{payload bytes}\n
//	... one header/payload pair per item
//
// Every item header carries type, content_type and the exact payload length.
package envelope

import (
	"errors"
	"slices"
	"time"

	"github.com/telhawk-systems/telhawk-beacon/internal/models"
	"github.com/telhawk-systems/telhawk-beacon/internal/outcome"
)

// Item types.
const (
	ItemTypeEvent        = "event"
	ItemTypeTransaction  = "transaction"
	ItemTypeClientReport = "client_report"
	ItemTypeUserReport   = "user_report"
	ItemTypeAttachment   = "attachment"
)

// Content types.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain"
	ContentTypeBinary = "application/octet-stream"
)

// ErrEncoding is returned when a header or payload cannot be serialized.
// A malformed envelope is never emitted; the whole encode fails.
var ErrEncoding = errors.New("envelope encoding fault")

// Header is the envelope header.
type Header map[string]any

// ItemHeader is an item header. Type is required; content_type and length are
// filled in by Encode.
type ItemHeader map[string]any

// Type returns the item's declared type.
func (h ItemHeader) Type() string {
	t, _ := h["type"].(string)
	return t
}

// ContentType returns the declared content type, if any.
func (h ItemHeader) ContentType() string {
	ct, _ := h["content_type"].(string)
	return ct
}

// Length returns the declared payload length and whether it was present.
func (h ItemHeader) Length() (int, bool) {
	switch v := h["length"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func (h ItemHeader) clone() ItemHeader {
	c := make(ItemHeader, len(h)+2)
	for k, v := range h {
		c[k] = v
	}
	return c
}

// Item is one header/payload unit. Payload is a string (UTF-8 text), a []byte
// (binary, sent as is), a json.RawMessage (pre-encoded JSON), or any other
// value, which is JSON encoded.
type Item struct {
	Header  ItemHeader
	Payload any
}

// NewItem returns an item of the given type.
func NewItem(itemType string, payload any) Item {
	return Item{Header: ItemHeader{"type": itemType}, Payload: payload}
}

// Envelope is a header plus an ordered, append-only list of items.
type Envelope struct {
	Header Header
	Items  []Item
}

// New creates an envelope.
func New(header Header, items ...Item) *Envelope {
	if header == nil {
		header = Header{}
	}
	return &Envelope{Header: header, Items: items}
}

// AppendItem adds an item after all existing items. Duplicate types are kept.
func (e *Envelope) AppendItem(item Item) {
	e.Items = append(e.Items, item)
}

// Clone returns a copy whose item list can grow without touching e. Headers
// and payloads are shared.
func (e *Envelope) Clone() *Envelope {
	return &Envelope{Header: e.Header, Items: slices.Clone(e.Items)}
}

// AppendItem adds item to env.
func AppendItem(env *Envelope, item Item) {
	env.AppendItem(item)
}

// EventID returns the event_id header, if set.
func (e *Envelope) EventID() string {
	id, _ := e.Header["event_id"].(string)
	return id
}

// Category returns the accounting category of the envelope's first item.
func (e *Envelope) Category() string {
	for _, item := range e.Items {
		switch item.Header.Type() {
		case ItemTypeTransaction:
			return outcome.CategoryTransaction
		case ItemTypeEvent:
			return outcome.CategoryError
		case ItemTypeUserReport:
			return outcome.CategoryUserReport
		}
	}
	return outcome.CategoryDefault
}

// NewEventEnvelope wraps an event in an envelope. Transactions get a
// transaction item, everything else an event item.
func NewEventEnvelope(event *models.Event, sdk *models.SdkInfo, sentAt time.Time) *Envelope {
	header := Header{
		"event_id": event.EventID,
		"sent_at":  sentAt.UTC().Format(time.RFC3339Nano),
	}
	if sdk != nil {
		header["sdk"] = map[string]string{"name": sdk.Name, "version": sdk.Version}
	}

	itemType := ItemTypeEvent
	if event.Type == models.EventTypeTransaction {
		itemType = ItemTypeTransaction
	}
	return New(header, NewItem(itemType, event))
}

// NewUserFeedbackEnvelope wraps a user report.
func NewUserFeedbackEnvelope(feedback models.UserFeedback, sdk *models.SdkInfo, sentAt time.Time) *Envelope {
	header := Header{
		"event_id": feedback.EventID,
		"sent_at":  sentAt.UTC().Format(time.RFC3339Nano),
	}
	if sdk != nil {
		header["sdk"] = map[string]string{"name": sdk.Name, "version": sdk.Version}
	}
	return New(header, NewItem(ItemTypeUserReport, feedback))
}

// NewAttachmentItem returns an attachment item. An empty content type is
// sent as application/octet-stream.
func NewAttachmentItem(attachment models.Attachment) Item {
	header := ItemHeader{"type": ItemTypeAttachment, "filename": attachment.Filename}
	if attachment.ContentType != "" {
		header["content_type"] = attachment.ContentType
	}
	return Item{Header: header, Payload: attachment.Data}
}

// NewClientReportItem builds a client_report item for the given outcomes.
func NewClientReportItem(outcomes []outcome.Outcome, timestamp time.Time) Item {
	return NewItem(ItemTypeClientReport, outcome.ClientReport{
		Timestamp:       models.TimestampSeconds(timestamp),
		DiscardedEvents: append([]outcome.Outcome(nil), outcomes...),
	})
}
