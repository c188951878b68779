package models

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventID(t *testing.T) {
	id := NewEventID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), id)
	assert.NotEqual(t, id, NewEventID())
}

func TestTimestampSeconds(t *testing.T) {
	ts := time.Unix(1700000000, 500_000_000)
	assert.InDelta(t, 1700000000.5, TimestampSeconds(ts), 1e-6)
}

func TestEvent_Category(t *testing.T) {
	assert.Equal(t, "error", (&Event{}).Category())
	assert.Equal(t, "transaction", (&Event{Type: EventTypeTransaction}).Category())

	var nilEvent *Event
	assert.Equal(t, "error", nilEvent.Category())
}

func TestEvent_AddDebugImages(t *testing.T) {
	event := NewEvent()
	event.AddDebugImages(DebugImage{Type: "macho", UUID: "a"})
	event.AddDebugImages(DebugImage{Type: "macho", UUID: "a"})

	require.NotNil(t, event.DebugMeta)
	assert.Len(t, event.DebugMeta.Images, 2, "images are never deduplicated")
}

func TestException_IsHardCrash(t *testing.T) {
	tests := []struct {
		name      string
		mechanism *Mechanism
		want      bool
	}{
		{"no mechanism", nil, false},
		{"handled unset", &Mechanism{Type: "onerror"}, false},
		{"handled true", &Mechanism{Type: "onerror", Handled: Bool(true)}, false},
		{"runtime unhandled", &Mechanism{Type: "onerror", Handled: Bool(false)}, true},
		{"user set unhandled", &Mechanism{Type: MechanismGeneric, Handled: Bool(false)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Exception{Mechanism: tt.mechanism}.IsHardCrash())
		})
	}
}

func TestFrame_OmitsAbsentFields(t *testing.T) {
	data, err := json.Marshal(Frame{Function: "main"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"function":"main"}`, string(data))

	data, err = json.Marshal(Frame{Lineno: Int(0), InApp: Bool(false)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lineno":0,"in_app":false}`, string(data))
}
