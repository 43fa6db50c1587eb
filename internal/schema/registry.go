// Package schema validates event payloads against CUE shapes.
//
// Shapes live in the embedded schemas.cue file, keyed by event type
// under the top-level "schemas" struct. Event types without a declared
// shape validate clean: the registry constrains what it knows and
// passes everything else through.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/format"
)

//go:embed schemas.cue
var schemasCUE string

// ValidationError reports a payload that does not satisfy its declared
// shape. Detail holds one message per failed constraint.
type ValidationError struct {
	EventType string
	Detail    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload does not match schema for %s: %s",
		e.EventType, strings.Join(e.Detail, "; "))
}

// Registry holds the compiled payload shapes, keyed by event type.
type Registry struct {
	ctx    *cue.Context
	shapes map[string]cue.Value
}

// NewRegistry compiles the embedded schema file. The result is safe
// for concurrent use by readers.
func NewRegistry() (*Registry, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemasCUE, cue.Filename("schemas.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compiling embedded schemas: %w", err)
	}

	shapesVal := root.LookupPath(cue.ParsePath("schemas"))
	if !shapesVal.Exists() {
		return nil, fmt.Errorf("embedded schemas.cue has no top-level schemas struct")
	}

	r := &Registry{ctx: ctx, shapes: make(map[string]cue.Value)}
	iter, err := shapesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating schemas: %w", err)
	}
	for iter.Next() {
		r.shapes[iter.Selector().Unquoted()] = iter.Value()
	}
	return r, nil
}

// Types returns the event types the registry declares a shape for.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.shapes))
	for t := range r.shapes {
		types = append(types, t)
	}
	return types
}

// Lookup returns the compiled shape for an event type.
func (r *Registry) Lookup(eventType string) (cue.Value, bool) {
	v, ok := r.shapes[eventType]
	return v, ok
}

// Source renders the shape for an event type back to CUE syntax, for
// display. Returns an error for undeclared types.
func (r *Registry) Source(eventType string) (string, error) {
	v, ok := r.shapes[eventType]
	if !ok {
		return "", fmt.Errorf("no schema declared for event type %q", eventType)
	}
	node := v.Syntax(cue.All(), cue.Docs(true))
	b, err := format.Node(node)
	if err != nil {
		return "", fmt.Errorf("formatting schema for %s: %w", eventType, err)
	}
	return string(b), nil
}

// Validate unifies a payload against the shape declared for its event
// type. Undeclared event types validate clean. A nil payload is
// treated as an empty map.
func (r *Registry) Validate(eventType string, payload map[string]any) error {
	shape, ok := r.shapes[eventType]
	if !ok {
		return nil
	}
	if payload == nil {
		payload = map[string]any{}
	}

	data := r.ctx.Encode(payload)
	if err := data.Err(); err != nil {
		return &ValidationError{EventType: eventType, Detail: []string{err.Error()}}
	}

	unified := shape.Unify(data)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		var detail []string
		for _, e := range cueerrors.Errors(err) {
			detail = append(detail, e.Error())
		}
		if len(detail) == 0 {
			detail = []string{err.Error()}
		}
		return &ValidationError{EventType: eventType, Detail: detail}
	}
	return nil
}
