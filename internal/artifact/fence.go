package artifact

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)```")

// Unfence returns the payload of a model answer: the body of the first
// fenced code block when there is one, otherwise the whole text. An opening
// fence that is never closed is dropped along with its info string.
func Unfence(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
			trimmed = trimmed[nl+1:]
		} else {
			trimmed = strings.TrimLeft(trimmed, "`")
			trimmed = strings.TrimPrefix(trimmed, "json")
		}
		trimmed = strings.TrimRight(strings.TrimSpace(trimmed), "`")
	}
	return strings.TrimSpace(trimmed)
}

// TextField returns the "text" value of a prediction response as a string.
// Endpoints that already answer with a decoded JSON value get it re-encoded.
func TextField(body map[string]interface{}) (string, bool) {
	value, found := body["text"]
	if !found || value == nil {
		return "", false
	}
	if s, isString := value.(string); isString {
		return s, true
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", false
	}
	return string(encoded), true
}

// DecodeText extracts and decodes the JSON payload of a model answer.
// Numbers are kept as json.Number so cells keep their textual form.
func DecodeText(text string) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(Unfence(text))))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
