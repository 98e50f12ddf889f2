package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	eventStreamType = "text/event-stream"
	eventDataMarker = "data:"
)

// Envelope is a decoded JSON-RPC response object with its members left raw.
type Envelope map[string]json.RawMessage

// Member returns a member that is present and not JSON null.
func (e Envelope) Member(key string) (json.RawMessage, bool) {
	raw, ok := e[key]
	if !ok || len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// Decode turns a response body into an Envelope. Event-stream bodies are
// searched for the first data line; anything else is decoded whole.
func Decode(body []byte, contentType string) (Envelope, error) {
	if strings.Contains(strings.ToLower(contentType), eventStreamType) {
		return decodeEventStream(body)
	}
	return decodeObject(body)
}

func decodeEventStream(body []byte) (Envelope, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, eventDataMarker) {
			continue
		}
		data := strings.TrimPrefix(line, eventDataMarker)
		data = strings.TrimPrefix(data, " ")
		return decodeObject([]byte(data))
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Kind: KindDecode, Message: "decode failed", cause: fmt.Errorf("failed to scan event stream: %w", err)}
	}
	return nil, &Error{Kind: KindDecode, Message: "decode failed", cause: fmt.Errorf("event stream has no data line")}
}

func decodeObject(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &Error{Kind: KindDecode, Message: "decode failed", cause: fmt.Errorf("failed to parse envelope: %w", err)}
	}
	if env == nil {
		return nil, &Error{Kind: KindDecode, Message: "decode failed", cause: fmt.Errorf("envelope is null")}
	}
	return env, nil
}
