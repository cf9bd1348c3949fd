// Package index ranks unique ids for identifier autocomplete and
// validation.
package index

import (
	"sort"
	"strings"

	"github.com/BrunoV21/CodeTide/internal/model"
)

// Tier orders suggestion groups: every prefix match ranks above every
// fuzzy match, which ranks above every keyword match.
type Tier int

const (
	TierPrefix Tier = iota
	TierFuzzy
	TierKeyword
)

func (t Tier) String() string {
	switch t {
	case TierPrefix:
		return "prefix"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "keyword"
	}
}

// Suggestion is one ranked id.
type Suggestion struct {
	ID    string  `json:"id"`
	Tier  Tier    `json:"tier"`
	Score float64 `json:"score"`
}

// Options tune ranking.
type Options struct {
	MaxSuggestions int // cap on returned suggestions
	MaxDistance    int // edit distance bound for fuzzy last-segment matches
	MaxMatches     int // cap on close matches reported by Validate
	MinSimilarity  float64
}

// DefaultOptions returns the default ranking options.
func DefaultOptions() Options {
	return Options{MaxSuggestions: 10, MaxDistance: 2, MaxMatches: 5, MinSimilarity: 0.3}
}

// Autocomplete ranks a fixed set of ids. It is immutable after New and
// safe for concurrent use.
type Autocomplete struct {
	opts  Options
	ids   []string
	lower []string
	exact map[string]string
	bm    *BM25
}

// New indexes ids.
func New(ids []string, opts Options) *Autocomplete {
	def := DefaultOptions()
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = def.MaxSuggestions
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = def.MaxDistance
	}
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = def.MaxMatches
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = def.MinSimilarity
	}
	a := &Autocomplete{
		opts:  opts,
		ids:   append([]string(nil), ids...),
		exact: make(map[string]string, len(ids)),
		bm:    NewBM25(0, 0),
	}
	sort.Strings(a.ids)
	a.lower = make([]string, len(a.ids))
	for i, id := range a.ids {
		l := strings.ToLower(id)
		a.lower[i] = l
		if _, ok := a.exact[l]; !ok {
			a.exact[l] = id
		}
		a.bm.AddDocument(id, id)
	}
	a.bm.Build()
	return a
}

// Len returns the number of indexed ids.
func (a *Autocomplete) Len() int { return len(a.ids) }

// IDs returns the indexed ids, sorted.
func (a *Autocomplete) IDs() []string { return append([]string(nil), a.ids...) }

// Suggest returns the ranked ids for query.
func (a *Autocomplete) Suggest(query string, fuzzy bool) []string {
	ranked := a.Rank(query, fuzzy)
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.ID
	}
	return out
}

// Rank returns suggestions for query, case-insensitively: ids or dotted
// suffixes starting with query first; then, when fuzzy, ids containing
// query or whose last segment is within the edit bound, then keyword
// matches over identifier tokens.
func (a *Autocomplete) Rank(query string, fuzzy bool) []Suggestion {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []Suggestion
	emit := func(tier []Suggestion) {
		sortTier(tier)
		for _, s := range tier {
			seen[s.ID] = true
		}
		out = append(out, tier...)
	}

	var prefix []Suggestion
	for i, l := range a.lower {
		switch {
		case strings.HasPrefix(l, q):
			prefix = append(prefix, Suggestion{ID: a.ids[i], Tier: TierPrefix, Score: 1})
		case segmentPrefix(l, q):
			prefix = append(prefix, Suggestion{ID: a.ids[i], Tier: TierPrefix, Score: 0.5})
		}
	}
	emit(prefix)

	if fuzzy && len(out) < a.opts.MaxSuggestions {
		var fz []Suggestion
		bound := max(a.opts.MaxDistance, len(q)/4)
		qLast := model.LastSegment(q)
		for i, l := range a.lower {
			if seen[a.ids[i]] {
				continue
			}
			if strings.Contains(l, q) {
				fz = append(fz, Suggestion{ID: a.ids[i], Tier: TierFuzzy, Score: 1})
				continue
			}
			if d := levenshtein(model.LastSegment(l), qLast); d <= bound {
				fz = append(fz, Suggestion{ID: a.ids[i], Tier: TierFuzzy, Score: 1 / float64(1+d)})
			}
		}
		emit(fz)

		var kw []Suggestion
		for _, r := range a.bm.Search(query, len(a.ids)) {
			if !seen[r.ID] {
				kw = append(kw, Suggestion{ID: r.ID, Tier: TierKeyword, Score: r.Score})
			}
		}
		emit(kw)
	}

	if len(out) > a.opts.MaxSuggestions {
		out = out[:a.opts.MaxSuggestions]
	}
	return out
}

// segmentPrefix reports whether some dotted suffix of id starts with q.
func segmentPrefix(id, q string) bool {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' && strings.HasPrefix(id[i+1:], q) {
			return true
		}
	}
	return false
}

// sortTier orders by score, then shorter id, then lexically.
func sortTier(s []Suggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		if len(s[i].ID) != len(s[j].ID) {
			return len(s[i].ID) < len(s[j].ID)
		}
		return s[i].ID < s[j].ID
	})
}

// Validation is the result of checking an identifier.
type Validation struct {
	Identifier string   `json:"code_identifier"`
	Valid      bool     `json:"is_valid"`
	Canonical  string   `json:"canonical,omitempty"`
	Matches    []string `json:"matching_identifiers"`
}

// Validate reports whether id names an indexed id, ignoring case. When it
// does not, Matches lists the closest ids by edit similarity, topped up
// with ids containing id.
func (a *Autocomplete) Validate(id string) Validation {
	v := Validation{Identifier: id, Matches: []string{}}
	if strings.TrimSpace(id) == "" {
		return v
	}
	l := strings.ToLower(id)
	if canonical, ok := a.exact[l]; ok {
		v.Valid = true
		v.Canonical = canonical
		return v
	}

	type match struct {
		id  string
		sim float64
	}
	var found []match
	picked := make(map[string]bool)
	for i, cand := range a.lower {
		if sim := similarity(l, cand); sim >= a.opts.MinSimilarity {
			found = append(found, match{a.ids[i], sim})
			picked[a.ids[i]] = true
		}
	}
	for i, cand := range a.lower {
		if !picked[a.ids[i]] && strings.Contains(cand, l) {
			found = append(found, match{a.ids[i], similarity(l, cand)})
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].sim != found[j].sim {
			return found[i].sim > found[j].sim
		}
		return found[i].id < found[j].id
	})
	for i := 0; i < len(found) && i < a.opts.MaxMatches; i++ {
		v.Matches = append(v.Matches, found[i].id)
	}
	return v
}
