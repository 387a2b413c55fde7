package diagram

import (
	"errors"
	"fmt"
	"strings"

	"sysdesign-ai/internal/artifact"
)

var (
	ErrDiagramMissing   = errors.New("diagram not found in response")
	ErrDiagramMalformed = errors.New("diagram response is malformed")
)

// Payload is what a diagram stage keeps: the markup as received and the graph
// derived from it.
type Payload struct {
	Markup string `json:"markup"`
	Graph  Graph  `json:"graph"`
	DOT    string `json:"dot"`
}

func NewPayload(markup string) Payload {
	g := Translate(markup)
	return Payload{Markup: markup, Graph: g, DOT: g.DOT()}
}

// FromResponse reads the markup stored under the first of keys that holds a
// non-empty string in the JSON carried by the response's text field.
func FromResponse(body map[string]interface{}, keys ...string) (Payload, error) {
	text, found := artifact.TextField(body)
	if !found {
		return Payload{}, fmt.Errorf("%w: response has no text field", ErrDiagramMissing)
	}

	parsed, err := artifact.DecodeText(text)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrDiagramMalformed, err)
	}
	obj, isObject := parsed.(map[string]interface{})
	if !isObject {
		return Payload{}, fmt.Errorf("%w: expected a JSON object", ErrDiagramMalformed)
	}

	for _, key := range keys {
		markup, _ := obj[key].(string)
		markup = strings.TrimSpace(artifact.Unfence(markup))
		if markup != "" {
			return NewPayload(markup), nil
		}
	}
	return Payload{}, fmt.Errorf("%w: none of %s present", ErrDiagramMissing, strings.Join(keys, ", "))
}
