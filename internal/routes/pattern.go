// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package routes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/plugmesh/plugmesh/pkg/sdk"
)

// ParamType is the declared type of a path parameter.
type ParamType string

// Parameter types supported by the `{name[:type]}` pattern syntax.
const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamBool   ParamType = "bool"
)

// paramNamePattern validates parameter names.
var paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Pattern is a parsed route pattern.
type Pattern struct {
	// Raw is the pattern as declared, e.g. "/sum/{x:int}/{y:int}".
	Raw string
	// GinPath is the same pattern in gin syntax, e.g. "/sum/:x/:y".
	GinPath string
	// Params maps parameter names to their declared types.
	Params map[string]ParamType
}

// FirstSegment returns the first non-empty literal-or-parameter segment,
// used as the default plugin name for grouping.
func (p Pattern) FirstSegment() string {
	for _, seg := range strings.Split(p.Raw, "/") {
		if seg == "" {
			continue
		}
		seg = strings.Trim(seg, "{}")
		if idx := strings.IndexByte(seg, ':'); idx >= 0 {
			seg = seg[:idx]
		}
		return seg
	}
	return ""
}

// ParsePattern parses a declared route pattern into its gin form plus the
// typed-parameter table.
func ParsePattern(raw string) (Pattern, error) {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return Pattern{}, fmt.Errorf("pattern %q must start with '/'", raw)
	}

	p := Pattern{Raw: raw, Params: make(map[string]ParamType)}
	segments := strings.Split(raw, "/")
	out := make([]string, 0, len(segments))

	for _, seg := range segments {
		if !strings.HasPrefix(seg, "{") {
			out = append(out, seg)
			continue
		}
		if !strings.HasSuffix(seg, "}") {
			return Pattern{}, fmt.Errorf("pattern %q: malformed parameter segment %q", raw, seg)
		}
		name := seg[1 : len(seg)-1]
		typ := ParamString
		if idx := strings.IndexByte(name, ':'); idx >= 0 {
			switch name[idx+1:] {
			case "int":
				typ = ParamInt
			case "bool":
				typ = ParamBool
			default:
				return Pattern{}, fmt.Errorf("pattern %q: unsupported parameter type %q", raw, name[idx+1:])
			}
			name = name[:idx]
		}
		if !paramNamePattern.MatchString(name) {
			return Pattern{}, fmt.Errorf("pattern %q: invalid parameter name %q", raw, name)
		}
		if _, dup := p.Params[name]; dup {
			return Pattern{}, fmt.Errorf("pattern %q: duplicate parameter %q", raw, name)
		}
		p.Params[name] = typ
		out = append(out, ":"+name)
	}

	p.GinPath = strings.Join(out, "/")
	return p, nil
}

// ValidateParams checks raw path-parameter values against the declared
// types, returning typed-parse errors before the handler ever runs.
func (p Pattern) ValidateParams(params sdk.Params) error {
	for name, typ := range p.Params {
		raw, ok := params[name]
		if !ok {
			return fmt.Errorf("param %q not bound", name)
		}
		switch typ {
		case ParamInt:
			if _, err := strconv.Atoi(raw); err != nil {
				return fmt.Errorf("param %q: %q is not an integer", name, raw)
			}
		case ParamBool:
			if _, err := strconv.ParseBool(raw); err != nil {
				return fmt.Errorf("param %q: %q is not a boolean", name, raw)
			}
		case ParamString:
		}
	}
	return nil
}
