package emitter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var errEmptyPayload = errors.New("payload is empty")

// compactPayload checks that text is exactly one RFC 8259 JSON value and
// returns its compact serialisation. The standard scanner is used here because
// goccy/go-json accepts number literals such as 01 and 1. that JSON forbids.
func compactPayload(text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errEmptyPayload
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
