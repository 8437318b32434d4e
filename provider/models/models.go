package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/mohammad-safakhou/lumina/utils"
)

// Roles used in chat history. Gemini calls the assistant "model"; the other
// providers translate it.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of a conversation.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Media is an inline binary payload (image or audio).
type Media struct {
	MimeType string
	Data     []byte
}

// Schema is a JSON schema document that constrains a structured response.
type Schema struct {
	Name string
	Doc  json.RawMessage
}

// Map decodes the schema document for embedding in request bodies.
func (s *Schema) Map() map[string]any {
	if s == nil || len(s.Doc) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(s.Doc, &out); err != nil {
		return nil
	}
	return out
}

// ErrUnnamedSchemaType is returned by SchemaFor for anonymous struct types,
// which the reflector cannot expand into a root schema.
var ErrUnnamedSchemaType = errors.New("schema type must be a named type")

// SchemaFor reflects a JSON schema from the named Go type of v.
func SchemaFor(name string, v any) (*Schema, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return nil, fmt.Errorf("reflect schema %s: %w", name, ErrUnnamedSchemaType)
	}
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	doc := r.Reflect(v)
	doc.Version = ""
	doc.ID = ""
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("reflect schema %s: %w", name, err)
	}
	return &Schema{Name: name, Doc: b}, nil
}

// MustSchemaFor is SchemaFor for package-level schemas; it panics on error.
func MustSchemaFor(name string, v any) *Schema {
	s, err := SchemaFor(name, v)
	if err != nil {
		panic(err)
	}
	return s
}

// ExtractJSON strips markdown code fences some models wrap around JSON output.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindCredentials ErrorKind = "credentials"
	KindTransport   ErrorKind = "transport"
	KindStatus      ErrorKind = "status"
	KindPayload     ErrorKind = "payload"
)

var (
	ErrMissingCredentials = errors.New("api key not configured")
	ErrEmptyResponse      = errors.New("empty response")
	ErrUnsupported        = errors.New("operation not supported by provider")
)

// Error is returned by every provider call that fails.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (%d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with the given classification.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// MissingCredentials is the error every provider returns when its key is unset.
func MissingCredentials(provider string) *Error {
	return NewError(provider, KindCredentials, ErrMissingCredentials)
}

// Classify maps an error from utils.HTTPClient onto an Error.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	var statusErr *utils.StatusError
	if errors.As(err, &statusErr) {
		kind := KindStatus
		if statusErr.StatusCode == 401 || statusErr.StatusCode == 403 {
			kind = KindCredentials
		}
		return &Error{Provider: provider, Kind: kind, StatusCode: statusErr.StatusCode, Err: err}
	}
	var decodeErr *utils.DecodeError
	if errors.As(err, &decodeErr) {
		return NewError(provider, KindPayload, err)
	}
	return NewError(provider, KindTransport, err)
}
