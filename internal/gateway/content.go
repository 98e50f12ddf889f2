package gateway

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ReduceContent collapses a tool result to the value the caller sees:
// the text of a single content item, the newline-joined texts of several,
// a bare content string, a top-level text field, or the value unchanged.
func ReduceContent(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if content, ok := m["content"]; ok {
		switch c := content.(type) {
		case []any:
			texts := contentTexts(c)
			switch len(texts) {
			case 0:
				return c
			case 1:
				return texts[0]
			default:
				return strings.Join(texts, "\n")
			}
		default:
			return c
		}
	}
	if text, ok := m["text"]; ok {
		return text
	}
	return m
}

func contentTexts(items []any) []string {
	var texts []string
	for _, item := range items {
		switch it := item.(type) {
		case string:
			texts = append(texts, it)
		case map[string]any:
			if text, ok := it["text"]; ok {
				texts = append(texts, stringify(text))
			}
		}
	}
	return texts
}

// isToolError reports a tool result flagged with isError.
func isToolError(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	flag, _ := m["isError"].(bool)
	return flag
}

// isEmpty treats nil, blank strings and empty collections as no result.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// FailureSniffer flags plain-text tool output that reports a failure while
// the transport reported success. The keyword match is a heuristic tuned for
// the peer; structured JSON text is never sniffed.
type FailureSniffer struct {
	keywords []string
}

// NewFailureSniffer lower-cases and keeps the non-blank keywords.
func NewFailureSniffer(keywords []string) FailureSniffer {
	s := FailureSniffer{}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			s.keywords = append(s.keywords, k)
		}
	}
	return s
}

// LooksLikeFailure reports whether text is empty or carries a failure keyword.
func (s FailureSniffer) LooksLikeFailure(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	if _, ok := errorObject(trimmed); ok {
		return true
	}
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, k := range s.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// errorObject reports an error structure: a map with a top-level "error"
// key, or text that decodes to one. Keys such as "error_rate" do not count.
func errorObject(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		_, ok := x["error"]
		return x, ok
	case string:
		trimmed := strings.TrimSpace(x)
		if !strings.HasPrefix(trimmed, "{") {
			return nil, false
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
			return nil, false
		}
		_, ok := m["error"]
		return m, ok
	}
	return nil, false
}

// structuredFailure converts an error structure into a remote error. The
// error value may be a string or an object with message and code.
func structuredFailure(m map[string]any, capability string) *Error {
	e := &Error{Kind: KindRemote, Capability: capability}
	code := m["code"]
	switch inner := m["error"].(type) {
	case map[string]any:
		if msg, ok := inner["message"]; ok {
			e.Message = stringify(msg)
		} else {
			e.Message = stringify(inner)
		}
		if c, ok := inner["code"]; ok {
			code = c
		}
	default:
		e.Message = strings.TrimSpace(stringify(inner))
	}
	if e.Message == "" {
		e.Message = "remote error"
	}
	if c, ok := code.(float64); ok {
		n := int(c)
		e.Code = &n
	}
	return e
}

// stringify renders a decoded JSON value as text.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case []byte:
		return string(x)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// isSequence reports slices and arrays other than byte slices.
func isSequence(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// isScalar reports strings, booleans and numbers.
func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number, []byte:
		return true
	}
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// firstElement returns the first element of a sequence and whether it had one.
func firstElement(v any) (any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Len() == 0 {
		return nil, false
	}
	return rv.Index(0).Interface(), true
}
