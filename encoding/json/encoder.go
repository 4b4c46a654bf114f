package json

import (
	"bytes"
	"encoding/json"

	"github.com/bububa/ljson"
)

// Encoder writes indented JSON and reads lenient JSON,
// such as the body pasted from a chat window or a shell.
type Encoder struct {
	indent string
}

func NewEncoder() *Encoder {
	return &Encoder{indent: "  "}
}

// WithIndent sets the indentation, empty for compact output
func (e *Encoder) WithIndent(indent string) *Encoder {
	e.indent = indent
	return e
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if e.indent != "" {
		enc.SetIndent("", e.indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	return ljson.Unmarshal(cleanJSON(bs), ret)
}

func (e *Encoder) ContentType() string {
	return "application/json"
}

// cleanJSON removes the text around the JSON object or array
func cleanJSON(bs []byte) []byte {
	bs = bytes.TrimSpace(bs)
	start := bytes.IndexAny(bs, "{[")
	if start == -1 {
		return bs
	}
	closing := byte('}')
	if bs[start] == '[' {
		closing = ']'
	}
	end := bytes.LastIndexByte(bs, closing)
	if end < start {
		return bs[start:]
	}
	return bs[start : end+1]
}
