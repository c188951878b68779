package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
	"github.com/telhawk-systems/telhawk-beacon/internal/outcome"
)

func TestEncode_TextAndBinaryRoundTrip(t *testing.T) {
	binary := []byte{0x00, 0x01, '\n', 0xff, 0xfe, '\n'}
	env := New(Header{"event_id": "abc"},
		Item{Header: ItemHeader{"type": ItemTypeAttachment, "filename": "log.txt"}, Payload: "hello\nworld"},
		Item{Header: ItemHeader{"type": ItemTypeAttachment, "content_type": "image/png"}, Payload: binary},
	)

	encoded, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(encoded.Bytes)
	require.NoError(t, err)

	assert.Equal(t, "abc", decoded.EventID())
	require.Len(t, decoded.Items, 2)

	text := decoded.Items[0]
	assert.Equal(t, ItemTypeAttachment, text.Header.Type())
	assert.Equal(t, ContentTypeText, text.Header.ContentType())
	assert.Equal(t, "log.txt", text.Header["filename"])
	length, ok := text.Header.Length()
	require.True(t, ok)
	assert.Equal(t, len("hello\nworld"), length)
	assert.Equal(t, []byte("hello\nworld"), text.Payload)

	bin := decoded.Items[1]
	assert.Equal(t, "image/png", bin.Header.ContentType())
	length, ok = bin.Header.Length()
	require.True(t, ok)
	assert.Equal(t, len(binary), length)
	assert.Equal(t, binary, bin.Payload)
}

func TestEncode_WireLayout(t *testing.T) {
	env := New(Header{"event_id": "1"}, NewItem(ItemTypeEvent, map[string]string{"a": "b"}))

	encoded, err := Encode(env)
	require.NoError(t, err)

	want := `{"event_id":"1"}` + "\n" +
		`{"content_type":"application/json","length":9,"type":"event"}` + "\n" +
		`{"a":"b"}` + "\n"
	assert.Equal(t, want, string(encoded.Bytes))
}

func TestEncode_JSONLengthIsExactAndDeterministic(t *testing.T) {
	payload := map[string]string{"k": "v1"}
	jsonText, err := json.Marshal(payload)
	require.NoError(t, err)
	require.Len(t, jsonText, 10)

	env := New(Header{}, NewItem(ItemTypeEvent, payload))

	first, err := Encode(env)
	require.NoError(t, err)
	second, err := Encode(env)
	require.NoError(t, err)

	length, ok := first.Headers[0].Length()
	require.True(t, ok)
	assert.Equal(t, len(jsonText), length)
	assert.Equal(t, first.Bytes, second.Bytes)
}

func TestEncode_MultibyteTextLength(t *testing.T) {
	env := New(Header{}, Item{Header: ItemHeader{"type": ItemTypeAttachment}, Payload: "héllo ☃"})

	encoded, err := Encode(env)
	require.NoError(t, err)

	length, _ := encoded.Headers[0].Length()
	assert.Equal(t, len([]byte("héllo ☃")), length)
}

func TestEncode_BinaryDefaultsToOctetStream(t *testing.T) {
	env := New(Header{}, Item{Header: ItemHeader{"type": ItemTypeAttachment}, Payload: []byte{1, 2, 3}})

	encoded, err := Encode(env)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeBinary, encoded.Headers[0].ContentType())
}

func TestEncode_ClientReportItem(t *testing.T) {
	now := time.Unix(1700000000, 0)
	env := New(Header{})
	AppendItem(env, NewClientReportItem([]outcome.Outcome{
		{Reason: outcome.ReasonBeforeSend, Category: outcome.CategoryError, Quantity: 2},
	}, now))

	encoded, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(encoded.Bytes)
	require.NoError(t, err)
	require.Len(t, decoded.Items, 1)

	item := decoded.Items[0]
	assert.Equal(t, ItemTypeClientReport, item.Header.Type())
	assert.Equal(t, ContentTypeJSON, item.Header.ContentType())

	var report outcome.ClientReport
	require.NoError(t, json.Unmarshal(item.Payload.([]byte), &report))
	assert.Equal(t, float64(1700000000), report.Timestamp)
	assert.Equal(t, []outcome.Outcome{
		{Reason: outcome.ReasonBeforeSend, Category: outcome.CategoryError, Quantity: 2},
	}, report.DiscardedEvents)
}

func TestEncode_PreservesOrderAndDuplicates(t *testing.T) {
	env := New(Header{})
	env.AppendItem(NewItem(ItemTypeEvent, map[string]int{"n": 1}))
	env.AppendItem(NewItem(ItemTypeClientReport, map[string]int{"n": 2}))
	env.AppendItem(NewItem(ItemTypeEvent, map[string]int{"n": 3}))

	encoded, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(encoded.Bytes)
	require.NoError(t, err)
	require.Len(t, decoded.Items, 3)

	types := []string{}
	payloads := []string{}
	for _, item := range decoded.Items {
		types = append(types, item.Header.Type())
		payloads = append(payloads, string(item.Payload.([]byte)))
	}
	assert.Equal(t, []string{ItemTypeEvent, ItemTypeClientReport, ItemTypeEvent}, types)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, payloads)
}

func TestEncode_DoesNotMutateItemHeaders(t *testing.T) {
	header := ItemHeader{"type": ItemTypeEvent}
	env := New(Header{}, Item{Header: header, Payload: map[string]string{}})

	_, err := Encode(env)
	require.NoError(t, err)

	assert.Equal(t, ItemHeader{"type": ItemTypeEvent}, header)
}

func TestEncode_EncodingFault(t *testing.T) {
	tests := []struct {
		name string
		env  *Envelope
	}{
		{
			name: "unencodable payload",
			env:  New(Header{}, NewItem(ItemTypeEvent, map[string]any{"f": func() {}})),
		},
		{
			name: "NaN payload",
			env:  New(Header{}, NewItem(ItemTypeEvent, math.NaN())),
		},
		{
			name: "nil payload",
			env:  New(Header{}, NewItem(ItemTypeEvent, nil)),
		},
		{
			name: "invalid raw JSON",
			env:  New(Header{}, NewItem(ItemTypeEvent, json.RawMessage(`{"a":`))),
		},
		{
			name: "unencodable envelope header",
			env:  New(Header{"ch": make(chan int)}),
		},
		{
			name: "unencodable item header",
			env:  New(Header{}, Item{Header: ItemHeader{"type": "x", "bad": func() {}}, Payload: "ok"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.env)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEncoding))
			assert.Nil(t, encoded)
		})
	}
}

func TestEncode_FaultNamesTheItem(t *testing.T) {
	env := New(Header{},
		NewItem(ItemTypeEvent, map[string]string{}),
		NewItem(ItemTypeClientReport, map[string]any{"f": func() {}}),
	)

	_, err := Encode(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1 (client_report)")
}

func TestEncode_HardCrash(t *testing.T) {
	crash := &models.Event{
		EventID: "1",
		Exception: &models.ExceptionList{Values: []models.Exception{
			{Type: "Error", Mechanism: &models.Mechanism{Type: "onerror", Handled: models.Bool(false)}},
		}},
	}
	manual := &models.Event{
		EventID: "2",
		Exception: &models.ExceptionList{Values: []models.Exception{
			{Type: "Error", Mechanism: &models.Mechanism{Type: models.MechanismGeneric, Handled: models.Bool(false)}},
		}},
	}
	handled := &models.Event{
		EventID: "3",
		Exception: &models.ExceptionList{Values: []models.Exception{
			{Type: "Error", Mechanism: &models.Mechanism{Type: "onerror", Handled: models.Bool(true)}},
		}},
	}

	tests := []struct {
		name  string
		items []Item
		want  bool
	}{
		{"runtime crash", []Item{NewItem(ItemTypeEvent, crash)}, true},
		{"manual unhandled", []Item{NewItem(ItemTypeEvent, manual)}, false},
		{"handled", []Item{NewItem(ItemTypeEvent, handled)}, false},
		{"no exception", []Item{NewItem(ItemTypeEvent, &models.Event{EventID: "4"})}, false},
		{"crash after other items", []Item{
			NewItem(ItemTypeClientReport, outcome.ClientReport{}),
			NewItem(ItemTypeEvent, handled),
			NewItem(ItemTypeEvent, crash),
		}, true},
		{"text payload mentioning exception", []Item{
			{Header: ItemHeader{"type": ItemTypeAttachment}, Payload: `{"exception":{"values":[{"mechanism":{"handled":false}}]}}`},
		}, false},
		{"raw JSON crash", []Item{
			NewItem(ItemTypeEvent, json.RawMessage(`{"exception":{"values":[{"mechanism":{"type":"panic","handled":false}}]}}`)),
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(New(Header{}, tt.items...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, encoded.HardCrashed)
		})
	}
}

func TestNewEventEnvelope(t *testing.T) {
	sentAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sdk := &models.SdkInfo{Name: "telhawk.beacon", Version: "1.0.0"}

	env := NewEventEnvelope(&models.Event{EventID: "e1"}, sdk, sentAt)
	assert.Equal(t, "e1", env.EventID())
	assert.Equal(t, "2026-01-02T03:04:05Z", env.Header["sent_at"])
	require.Len(t, env.Items, 1)
	assert.Equal(t, ItemTypeEvent, env.Items[0].Header.Type())
	assert.Equal(t, outcome.CategoryError, env.Category())

	tx := NewEventEnvelope(&models.Event{EventID: "t1", Type: models.EventTypeTransaction}, nil, sentAt)
	assert.Equal(t, ItemTypeTransaction, tx.Items[0].Header.Type())
	assert.Equal(t, outcome.CategoryTransaction, tx.Category())
	assert.NotContains(t, tx.Header, "sdk")
}

func TestNewUserFeedbackEnvelope(t *testing.T) {
	env := NewUserFeedbackEnvelope(models.UserFeedback{EventID: "e1", Comments: "it broke"}, nil, time.Now())
	assert.Equal(t, "e1", env.EventID())
	assert.Equal(t, ItemTypeUserReport, env.Items[0].Header.Type())
	assert.Equal(t, outcome.CategoryUserReport, env.Category())
}

func TestDecode_WithoutLength(t *testing.T) {
	data := strings.Join([]string{
		`{"event_id":"x"}`,
		`{"type":"attachment"}`,
		`plain text`,
		`{"type":"event","length":2}`,
		`{}`,
	}, "\n")

	env, err := Decode([]byte(data))
	require.NoError(t, err)
	require.Len(t, env.Items, 2)
	assert.Equal(t, []byte("plain text"), env.Items[0].Payload)
	assert.Equal(t, []byte("{}"), env.Items[1].Payload)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad header", []byte("not json\n")},
		{"bad item header", []byte("{}\n{oops\n")},
		{"length overrun", []byte("{}\n{\"type\":\"event\",\"length\":50}\n{}\n")},
		{"missing terminator", []byte("{}\n{\"type\":\"event\",\"length\":1}\nab\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestEncode_ManyItemsStaysLinear(t *testing.T) {
	env := New(Header{})
	for i := 0; i < 500; i++ {
		env.AppendItem(Item{Header: ItemHeader{"type": ItemTypeAttachment}, Payload: []byte("x")})
	}

	encoded, err := Encode(env)
	require.NoError(t, err)
	assert.Equal(t, 500, bytes.Count(encoded.Bytes, []byte(`"length":1`)))
}

func TestNewAttachmentItem(t *testing.T) {
	env := New(Header{},
		NewAttachmentItem(models.Attachment{Filename: "screenshot.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}),
		NewAttachmentItem(models.Attachment{Filename: "dump.bin", Data: []byte{0, 1}}),
	)

	encoded, err := Encode(env)
	require.NoError(t, err)

	require.Len(t, encoded.Headers, 2)
	assert.Equal(t, "screenshot.png", encoded.Headers[0]["filename"])
	assert.Equal(t, "image/png", encoded.Headers[0].ContentType())
	assert.Equal(t, ContentTypeBinary, encoded.Headers[1].ContentType())
	assert.Equal(t, 2, encoded.Headers[1]["length"])
}

func TestEnvelope_Clone(t *testing.T) {
	env := New(Header{"event_id": "abc"}, NewItem(ItemTypeEvent, map[string]any{"a": 1}))
	env.Items = append(make([]Item, 0, 4), env.Items...)

	clone := env.Clone()
	clone.AppendItem(NewItem(ItemTypeClientReport, map[string]any{}))

	assert.Len(t, env.Items, 1)
	assert.Len(t, clone.Items, 2)
	assert.Equal(t, "abc", clone.EventID())
}
