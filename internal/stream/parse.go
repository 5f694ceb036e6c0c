package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	domain "github.com/oshokin/alarm-monitor/internal/domain/monitor"
)

// ErrMalformed is wrapped by every parse failure.
var ErrMalformed = errors.New("malformed feed message")

var (
	errBinaryFrame  = fmt.Errorf("%w: binary frame", ErrMalformed)
	errInvalidUTF8  = fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	errEmptyPayload = fmt.Errorf("%w: empty payload", ErrMalformed)
)

// ParseFunc turns one feed frame into an event. ReceivedAt is assigned by the client.
type ParseFunc func(messageType int, data []byte) (domain.AlertEvent, error)

// ParseMessage is the default ParseFunc. The payload is an opaque text; when
// it is a JSON object with a string or numeric "id" field, that becomes the
// event ID.
func ParseMessage(messageType int, data []byte) (domain.AlertEvent, error) {
	if messageType != websocket.TextMessage {
		return domain.AlertEvent{}, errBinaryFrame
	}

	if !utf8.Valid(data) {
		return domain.AlertEvent{}, errInvalidUTF8
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return domain.AlertEvent{}, errEmptyPayload
	}

	return domain.AlertEvent{
		ID:      extractID(trimmed),
		Payload: string(data),
	}, nil
}

// extractID returns the "id" of a JSON object payload, or "".
func extractID(data []byte) string {
	if data[0] != '{' {
		return ""
	}

	var envelope struct {
		ID json.RawMessage `json:"id"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.ID) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.ID, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(envelope.ID, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String()
		}
	}

	return ""
}
