package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

const eol = '\n'

// Encoded is a serialized envelope plus what was learned while serializing it.
type Encoded struct {
	Bytes []byte
	// HardCrashed is true when any JSON item carries an unhandled,
	// runtime-detected exception.
	HardCrashed bool
	// Headers are the item headers as written, with content_type and length set.
	Headers []ItemHeader
}

// Encode serializes env. Item order is preserved and every item is written;
// any header or payload that cannot be serialized fails the whole encode with
// ErrEncoding. The caller's item headers are not modified.
func Encode(env *Envelope) (*Encoded, error) {
	header := env.Header
	if header == nil {
		header = Header{}
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("%w: envelope header: %v", ErrEncoding, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(headerBytes) + 1 + 256*len(env.Items))
	buf.Write(headerBytes)
	buf.WriteByte(eol)

	result := &Encoded{Headers: make([]ItemHeader, 0, len(env.Items))}
	for i, item := range env.Items {
		payload, contentType, isJSON, err := payloadBytes(item)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d (%s): %v", ErrEncoding, i, item.Header.Type(), err)
		}
		if isJSON && !result.HardCrashed {
			result.HardCrashed = IsHardCrash(payload)
		}

		itemHeader := item.Header.clone()
		itemHeader["content_type"] = contentType
		itemHeader["length"] = len(payload)

		itemHeaderBytes, err := json.Marshal(itemHeader)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d header: %v", ErrEncoding, i, err)
		}

		buf.Write(itemHeaderBytes)
		buf.WriteByte(eol)
		buf.Write(payload)
		buf.WriteByte(eol)

		result.Headers = append(result.Headers, itemHeader)
	}

	result.Bytes = buf.Bytes()
	return result, nil
}

func payloadBytes(item Item) (payload []byte, contentType string, isJSON bool, err error) {
	switch p := item.Payload.(type) {
	case string:
		return []byte(p), ContentTypeText, false, nil
	case []byte:
		ct := item.Header.ContentType()
		if ct == "" {
			ct = ContentTypeBinary
		}
		return p, ct, false, nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, "", false, fmt.Errorf("invalid raw JSON payload")
		}
		return p, ContentTypeJSON, true, nil
	case nil:
		return nil, "", false, fmt.Errorf("nil payload")
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, "", false, err
		}
		return data, ContentTypeJSON, true, nil
	}
}

// crashProbe decodes only the fields the hard-crash check needs.
type crashProbe struct {
	Exception *struct {
		Values []models.Exception `json:"values"`
	} `json:"exception"`
}

// IsHardCrash reports whether a JSON payload contains an unhandled,
// runtime-detected exception. Payloads without exceptions, or whose unhandled
// flag was set through the manual capture API, are not hard crashes.
func IsHardCrash(payload []byte) bool {
	if !bytes.Contains(payload, []byte(`"exception"`)) {
		return false
	}
	var probe crashProbe
	if err := json.Unmarshal(payload, &probe); err != nil || probe.Exception == nil {
		return false
	}
	for _, exception := range probe.Exception.Values {
		if exception.IsHardCrash() {
			return true
		}
	}
	return false
}
