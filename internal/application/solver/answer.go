package solver

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/aescanero/quizsolver/pkg/processors"
)

// reply is the JSON shape the system prompt asks the model for
type reply struct {
	Answer json.RawMessage       `json:"answer"`
	Chart  *processors.ChartSpec `json:"chart,omitempty"`
}

// ErrNoAnswer is returned for model output that holds nothing to submit
var ErrNoAnswer = errors.New("model reply holds no answer")

// ParseReply extracts the answer and an optional chart request from model
// output. Empty output, a bare null and a null or blank "answer" yield
// ErrNoAnswer unless a chart was requested.
func ParseReply(content string) (interface{}, *processors.ChartSpec, error) {
	text := stripFences(content)

	var r reply
	if err := json.Unmarshal([]byte(text), &r); err == nil && r.Chart != nil && len(r.Chart.Values) > 0 {
		return Normalize(text), r.Chart, nil
	}

	answer := Normalize(text)
	if isBlank(answer) {
		return nil, nil, ErrNoAnswer
	}
	return answer, nil, nil
}

func isBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// Normalize converts model output into a JSON answer value.
//
// Code fences are removed. A JSON object with an "answer" key yields that
// value, other JSON documents are used as they are. Plain text becomes a
// number or boolean when it reads as one, otherwise the trimmed text with
// surrounding quotes removed.
func Normalize(content string) interface{} {
	text := stripFences(content)
	if text == "" {
		return ""
	}

	if v, ok := decodeJSON(text); ok {
		if obj, isObj := v.(map[string]interface{}); isObj {
			if answer, has := obj["answer"]; has {
				return answer
			}
		}
		return v
	}

	return scalar(text)
}

func scalar(text string) interface{} {
	text = strings.TrimSpace(text)
	if n, ok := number(text); ok {
		return n
	}
	switch strings.ToLower(text) {
	case "true":
		return true
	case "false":
		return false
	}
	return trimQuotes(text)
}

func number(text string) (interface{}, bool) {
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return nil, false
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return int64(f), true
	}
	return f, true
}

func decodeJSON(text string) (interface{}, bool) {
	if !json.Valid([]byte(text)) {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return convertNumbers(v), true
}

func convertNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if n, ok := number(t.String()); ok {
			return n
		}
		return t.String()
	case map[string]interface{}:
		for k, val := range t {
			t[k] = convertNumbers(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = convertNumbers(val)
		}
		return t
	default:
		return v
	}
}

func stripFences(content string) string {
	text := strings.TrimSpace(content)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the language tag line
		text = text[nl+1:]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func trimQuotes(text string) string {
	for _, q := range []string{`"`, `'`, "`"} {
		if len(text) >= 2 && strings.HasPrefix(text, q) && strings.HasSuffix(text, q) {
			return strings.TrimSpace(text[1 : len(text)-1])
		}
	}
	return text
}
