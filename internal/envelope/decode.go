package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Decode for input that does not follow the wire layout.
var ErrMalformed = errors.New("malformed envelope")

// Decode parses serialized envelope bytes. Payloads are returned as []byte.
// When an item header carries a length, exactly that many bytes are read, so
// payloads may contain newlines; otherwise the payload runs to the next newline.
func Decode(data []byte) (*Envelope, error) {
	line, rest, ok := cutLine(data)
	if !ok && len(line) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}

	var header Header
	if err := json.Unmarshal(line, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	env := New(header)

	for len(rest) > 0 {
		var headerLine []byte
		headerLine, rest, _ = cutLine(rest)
		if len(bytes.TrimSpace(headerLine)) == 0 {
			continue
		}

		var itemHeader ItemHeader
		if err := json.Unmarshal(headerLine, &itemHeader); err != nil {
			return nil, fmt.Errorf("%w: item %d header: %v", ErrMalformed, len(env.Items), err)
		}

		var payload []byte
		if length, ok := itemHeader.Length(); ok {
			if length < 0 || length > len(rest) {
				return nil, fmt.Errorf("%w: item %d declares %d bytes, %d available", ErrMalformed, len(env.Items), length, len(rest))
			}
			payload = rest[:length]
			rest = rest[length:]
			if len(rest) > 0 {
				if rest[0] != eol {
					return nil, fmt.Errorf("%w: item %d payload not newline terminated", ErrMalformed, len(env.Items))
				}
				rest = rest[1:]
			}
		} else {
			payload, rest, _ = cutLine(rest)
		}

		env.AppendItem(Item{Header: itemHeader, Payload: append([]byte(nil), payload...)})
	}

	return env, nil
}

func cutLine(data []byte) (line, rest []byte, found bool) {
	return bytes.Cut(data, []byte{eol})
}
