package graph

import (
	"fmt"
	"strings"
)

// AmbiguousIdentifierError reports a partial identifier matching several ids.
type AmbiguousIdentifierError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousIdentifierError) Error() string {
	return fmt.Sprintf("identifier %q is ambiguous; use one of: %s", e.Query, strings.Join(e.Candidates, ", "))
}

// UnknownIdentifierError reports an identifier matching nothing. Callers
// with an autocomplete index fill Suggestions.
type UnknownIdentifierError struct {
	Query       string
	Suggestions []string
}

func (e *UnknownIdentifierError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown identifier %q", e.Query)
	}
	return fmt.Sprintf("unknown identifier %q; did you mean: %s", e.Query, strings.Join(e.Suggestions, ", "))
}
