// Package payload decodes the inbound form-submission webhook envelope.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the decoded content of one submission event.
type Envelope struct {
	Data  Submission
	Files []FileReference
}

// Submission maps form field names to their submitted values. Keys are
// consumer-defined; there is no fixed schema.
type Submission map[string]Field

// FileReference points at an uploaded file by URL. The bytes live behind
// the URL; fetching them is the attachment fetcher's job.
type FileReference struct {
	URL         string `json:"url"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"type,omitempty"`
}

// wireEnvelope mirrors the webhook body: {"payload": {"data": ..., "files": ...}}.
type wireEnvelope struct {
	Payload struct {
		Data  Submission      `json:"data"`
		Files []FileReference `json:"files"`
	} `json:"payload"`
}

// Parse decodes a raw webhook body into an Envelope. Missing data or files
// default to empty; malformed JSON is the only error.
func Parse(body []byte) (*Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse submission payload: %w", err)
	}

	env := &Envelope{
		Data:  wire.Payload.Data,
		Files: wire.Payload.Files,
	}
	if env.Data == nil {
		env.Data = Submission{}
	}
	return env, nil
}

// FileURLs returns the URLs of all file references in order.
func (e *Envelope) FileURLs() []string {
	urls := make([]string, 0, len(e.Files))
	for _, f := range e.Files {
		urls = append(urls, f.URL)
	}
	return urls
}

// Field holds one submitted value: either a scalar or an ordered list of
// strings. Form backends send loosely typed JSON, so the codec accepts
// strings, numbers, booleans, null, and arrays of the same.
type Field struct {
	values []string
	multi  bool
}

// NewField returns a scalar Field.
func NewField(value string) Field {
	return Field{values: []string{value}}
}

// NewListField returns an ordered multi-value Field.
func NewListField(values ...string) Field {
	return Field{values: append([]string(nil), values...), multi: true}
}

// Values returns the underlying string values in order.
func (f Field) Values() []string {
	return append([]string(nil), f.values...)
}

// String renders the field for display: list values joined with ", ",
// scalars as-is.
func (f Field) String() string {
	return strings.Join(f.values, ", ")
}

// IsEmpty reports whether the field carries no renderable content: it was
// absent or null, or every value trims to the empty string.
func (f Field) IsEmpty() bool {
	for _, v := range f.values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// UnmarshalJSON accepts a string, number, boolean, null, or an array of
// those, normalizing everything to strings. Numbers keep their literal
// form (2020 stays "2020", not "2020.000000").
func (f *Field) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*f = Field{}
	case []interface{}:
		values := make([]string, 0, len(v))
		for _, elem := range v {
			values = append(values, scalarString(elem))
		}
		*f = Field{values: values, multi: true}
	default:
		*f = Field{values: []string{scalarString(v)}}
	}
	return nil
}

// MarshalJSON preserves the scalar-versus-list shape so the backup mirror
// round-trips the submission the way it arrived.
func (f Field) MarshalJSON() ([]byte, error) {
	if f.multi {
		return json.Marshal(f.values)
	}
	if len(f.values) == 0 {
		return json.Marshal("")
	}
	return json.Marshal(f.values[0])
}

func scalarString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		if s {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(s)
	}
}
