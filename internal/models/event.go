package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level is the event or breadcrumb severity.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
	// LevelLog is accepted from script callers and mapped to debug before crossing the bridge.
	LevelLog Level = "log"
)

// Event types. Error events leave Type empty.
const (
	EventTypeError       = ""
	EventTypeTransaction = "transaction"
)

// Event is one error/message occurrence as it travels through the capture pipeline.
type Event struct {
	EventID     string                    `json:"event_id"`
	Timestamp   float64                   `json:"timestamp"`
	Type        string                    `json:"type,omitempty"`
	Platform    string                    `json:"platform,omitempty"`
	Level       Level                     `json:"level,omitempty"`
	Logger      string                    `json:"logger,omitempty"`
	Message     any                       `json:"message,omitempty"`
	Release     string                    `json:"release,omitempty"`
	Dist        string                    `json:"dist,omitempty"`
	Environment string                    `json:"environment,omitempty"`
	Tags        map[string]string         `json:"tags,omitempty"`
	Extra       map[string]any            `json:"extra,omitempty"`
	Contexts    map[string]map[string]any `json:"contexts,omitempty"`
	User        *User                     `json:"user,omitempty"`
	Breadcrumbs []Breadcrumb              `json:"breadcrumbs,omitempty"`
	Exception   *ExceptionList            `json:"exception,omitempty"`
	Threads     *ThreadList               `json:"threads,omitempty"`
	DebugMeta   *DebugMeta                `json:"debug_meta,omitempty"`
	Sdk         *SdkInfo                  `json:"sdk,omitempty"`
	Transaction string                    `json:"transaction,omitempty"`
}

// NewEvent returns an event with a fresh ID and the current timestamp.
func NewEvent() *Event {
	return &Event{
		EventID:   NewEventID(),
		Timestamp: TimestampSeconds(time.Now()),
	}
}

// NewEventID returns a 32 character lowercase hex identifier.
func NewEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// TimestampSeconds converts t to fractional seconds since the epoch.
func TimestampSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Exceptions returns the event's exception values, or nil.
func (e *Event) Exceptions() []Exception {
	if e == nil || e.Exception == nil {
		return nil
	}
	return e.Exception.Values
}

// AddDebugImages appends images to the event's debug metadata.
func (e *Event) AddDebugImages(images ...DebugImage) {
	if e.DebugMeta == nil {
		e.DebugMeta = &DebugMeta{}
	}
	if e.DebugMeta.Images == nil {
		e.DebugMeta.Images = []DebugImage{}
	}
	e.DebugMeta.Images = append(e.DebugMeta.Images, images...)
}

// Category returns the data category used for dropped-event accounting.
func (e *Event) Category() string {
	if e != nil && e.Type == EventTypeTransaction {
		return "transaction"
	}
	return "error"
}

type ExceptionList struct {
	Values []Exception `json:"values"`
}

type ThreadList struct {
	Values []Thread `json:"values"`
}

type Thread struct {
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

type DebugMeta struct {
	Images []DebugImage `json:"images"`
}

type User struct {
	ID        string         `json:"id,omitempty"`
	Email     string         `json:"email,omitempty"`
	Username  string         `json:"username,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	Segment   string         `json:"segment,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type Breadcrumb struct {
	Type      string         `json:"type,omitempty"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     Level          `json:"level,omitempty"`
	Timestamp float64        `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type SdkInfo struct {
	Name     string    `json:"name"`
	Version  string    `json:"version"`
	Packages []Package `json:"packages,omitempty"`
}

type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// UserFeedback is a user report attached to a previously captured event.
type UserFeedback struct {
	EventID  string `json:"event_id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Comments string `json:"comments"`
}

// EventHint carries capture-time context that is not serialized with the event.
type EventHint struct {
	OriginalException any
	Attachments       []Attachment
}

// Attachment is a file sent alongside an event.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}
