// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package sdk

import (
	"fmt"
	"strconv"
)

// Request carries one HTTP request across the host/plugin boundary. All
// fields are plain data so the value travels over the wire unchanged.
type Request struct {
	// Method is the HTTP method (GET, POST).
	Method string

	// Path is the matched request path.
	Path string

	// Params holds path parameters bound by name from the route pattern.
	Params Params

	// Query holds query-string values (first value wins per key).
	Query map[string]string

	// Body is the raw request body, if any.
	Body []byte
}

// Params maps path-parameter names to their raw string values. Typed
// accessors correspond to the `{name:int}` / `{name:bool}` pattern syntax.
type Params map[string]string

// String returns the raw value for name, or "" if absent.
func (p Params) String(name string) string {
	return p[name]
}

// Int parses the value for name as a decimal integer.
func (p Params) Int(name string) (int, error) {
	raw, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("param %q not present", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("param %q is not an integer: %w", name, err)
	}
	return v, nil
}

// Bool parses the value for name as a boolean (strconv.ParseBool syntax).
func (p Params) Bool(name string) (bool, error) {
	raw, ok := p[name]
	if !ok {
		return false, fmt.Errorf("param %q not present", name)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("param %q is not a boolean: %w", name, err)
	}
	return v, nil
}
