package model

import (
	"fmt"
	"strings"
	"unicode"
)

// QualifiedID joins a module path and nested names into a unique id.
// Root-level modules (empty path) yield the bare qualified name.
func QualifiedID(module string, parts ...string) string {
	segs := make([]string, 0, len(parts)+1)
	if module != "" {
		segs = append(segs, module)
	}
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, ".")
}

// ValidateID rejects ids that could not have come from QualifiedID.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty unique id")
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return fmt.Errorf("unique id %q contains whitespace", id)
	}
	for _, seg := range strings.Split(id, ".") {
		if seg == "" {
			return fmt.Errorf("unique id %q has an empty segment", id)
		}
	}
	return nil
}

// LastSegment returns the final dotted segment of an id.
func LastSegment(id string) string {
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// HasSuffixSegment reports whether id equals suffix or ends with "."+suffix.
func HasSuffixSegment(id, suffix string) bool {
	if id == suffix {
		return true
	}
	return strings.HasSuffix(id, "."+suffix)
}
