package errdefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Facet is a reusable marker or data trait attached to a structured error.
// Marker facets drive recovery decisions; data facets promise that a prop
// with structured context is present.
type Facet string

const (
	// Marker facets
	NotFound          Facet = "not_found"
	BadInput          Facet = "bad_input"
	NotImplemented    Facet = "not_implemented"
	NotSupported      Facet = "not_supported"
	InvariantViolated Facet = "invariant_violated"

	// Data facets
	HasEntityRef   Facet = "has_entity_ref"
	HasEntityType  Facet = "has_entity_type"
	HasEntityField Facet = "has_entity_field"
	HasLoaderName  Facet = "has_loader_name"
	HasConnector   Facet = "has_connector"
)

// Props is the typed key-value bag carried by a structured error
type Props map[string]any

// Error is the structured error envelope that crosses every boundary
// unchanged: serialized on the sending side, reconstituted on the receiving
// side with code, message, props and facets preserved.
type Error struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Props   Props   `json:"props,omitempty"`
	Facets  []Facet `json:"facets,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasFacet reports whether the error carries the given facet
func (e *Error) HasFacet(f Facet) bool {
	for _, have := range e.Facets {
		if have == f {
			return true
		}
	}
	return false
}

// Prop returns a prop value by key
func (e *Error) Prop(key string) (any, bool) {
	v, ok := e.Props[key]
	return v, ok
}

// StringProp returns a prop value as a string, or "" if absent
func (e *Error) StringProp(key string) string {
	if v, ok := e.Props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Cause returns the nested cause error, if the error was annotated with one
func (e *Error) Cause() *Error {
	raw, ok := e.Props["cause"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	cause, err := Reconstitute(data)
	if err != nil {
		return nil
	}
	return cause
}

// As unwraps err to a structured *Error if it is one
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Has reports whether err is a structured error carrying facet f
func Has(err error, f Facet) bool {
	e, ok := As(err)
	return ok && e.HasFacet(f)
}

// Code returns the error code of a structured error, or "" for plain errors
func Code(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// Serialize renders the error as the flat wire object {code, message, props, facets}.
// Plain Go errors are wrapped under the platform.internal code so that no
// failure crosses a boundary unstructured.
func Serialize(err error) json.RawMessage {
	e, ok := As(err)
	if !ok {
		e = &Error{
			Code:    "platform.internal",
			Message: err.Error(),
		}
	}
	data, marshalErr := json.Marshal(e)
	if marshalErr != nil {
		data, _ = json.Marshal(&Error{Code: "platform.internal", Message: e.Message})
	}
	return data
}

// Reconstitute reassembles a structured error from its wire form
func Reconstitute(data json.RawMessage) (*Error, error) {
	var e Error
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to reconstitute error: %w", err)
	}
	if e.Code == "" {
		return nil, fmt.Errorf("reconstituted error has no code")
	}
	return &e, nil
}

// Definition declares an error shape owned by a boundary: its namespaced
// code, message template, required props and facets.
type Definition struct {
	Code     string
	Template string
	Required []string
	Facets   []Facet
}

// Define declares an error definition. The template references props as
// {propName}; required props are derived from the template.
func Define(code, template string, facets ...Facet) Definition {
	return Definition{
		Code:     code,
		Template: template,
		Required: templateProps(template),
		Facets:   facets,
	}
}

// New builds a structured error from the definition with the given props
func (d Definition) New(props Props) *Error {
	return &Error{
		Code:    d.Code,
		Message: expand(d.Template, props),
		Props:   props,
		Facets:  d.Facets,
	}
}

// Is reports whether err carries this definition's code
func (d Definition) Is(err error) bool {
	return Code(err) == d.Code
}

// Annotate creates a new error from the definition carrying the original
// error as a cause prop. Intermediate nodes never rewrap errors in place.
func (d Definition) Annotate(cause error, props Props) *Error {
	if props == nil {
		props = Props{}
	}
	if ce, ok := As(cause); ok {
		props["cause"] = ce
	} else if cause != nil {
		props["cause"] = &Error{Code: "platform.internal", Message: cause.Error()}
	}
	return d.New(props)
}

func templateProps(template string) []string {
	var props []string
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return props
		}
		close := strings.IndexByte(rest[open:], '}')
		if close < 0 {
			return props
		}
		props = append(props, rest[open+1:open+close])
		rest = rest[open+close+1:]
	}
}

func expand(template string, props Props) string {
	msg := template
	for key, value := range props {
		msg = strings.ReplaceAll(msg, "{"+key+"}", fmt.Sprintf("%v", value))
	}
	return msg
}
