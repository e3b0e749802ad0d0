package parser

import "strings"

// payload is one decoded telemetry frame. Providers disagree on shape:
// some nest objects with camelCase keys ("truck": {"speed": ...}), others
// flatten everything into snake_case keys ("truck_speed"). The readers below
// take an ordered list of candidate dot-paths and return the first match,
// falling back to a default so a partially populated frame never fails.
type payload map[string]any

// lookup walks a dot-separated path through nested maps.
func (p payload) lookup(path string) (any, bool) {
	cur := any(p)
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// has reports whether any of the candidate paths resolves to a value.
func (p payload) has(paths ...string) bool {
	for _, path := range paths {
		if _, ok := p.lookup(path); ok {
			return true
		}
	}
	return false
}

func (p payload) float(def float64, paths ...string) float64 {
	for _, path := range paths {
		v, ok := p.lookup(path)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func (p payload) integer(def int, paths ...string) int {
	for _, path := range paths {
		v, ok := p.lookup(path)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

func (p payload) boolean(def bool, paths ...string) bool {
	for _, path := range paths {
		if v, ok := p.lookup(path); ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	return def
}

func (p payload) str(def string, paths ...string) string {
	for _, path := range paths {
		if v, ok := p.lookup(path); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return def
}
