// Package treesitter provides pooled tree-sitter parsers keyed by grammar.
package treesitter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Grammar names accepted by Parse.
const (
	Python     = "python"
	TypeScript = "typescript"
	TSX        = "tsx"
)

var (
	langMu sync.Mutex
	langs  = make(map[string]*sitter.Language)
)

// Language returns the tree-sitter language for a grammar name.
func Language(name string) (*sitter.Language, error) {
	langMu.Lock()
	defer langMu.Unlock()

	if lang, ok := langs[name]; ok {
		return lang, nil
	}
	var lang *sitter.Language
	switch name {
	case Python:
		lang = python.GetLanguage()
	case TypeScript:
		lang = typescript.GetLanguage()
	case TSX:
		lang = tsx.GetLanguage()
	default:
		return nil, fmt.Errorf("unsupported grammar: %s", name)
	}
	langs[name] = lang
	return lang, nil
}

// Pool hands out tree-sitter parsers for one grammar. A sitter.Parser is
// not safe for concurrent use, so each Parse call borrows its own.
type Pool struct {
	grammar string
	pool    sync.Pool
}

// NewPool creates a parser pool for the named grammar.
func NewPool(grammar string) (*Pool, error) {
	lang, err := Language(grammar)
	if err != nil {
		return nil, err
	}
	p := &Pool{grammar: grammar}
	p.pool.New = func() any {
		sp := sitter.NewParser()
		sp.SetLanguage(lang)
		return sp
	}
	return p, nil
}

// Grammar returns the pool's grammar name.
func (p *Pool) Grammar() string {
	return p.grammar
}

// Parse parses source code and returns a tree-sitter Tree. The caller
// must Close the tree. A cancelled ctx returns ctx.Err().
func (p *Pool) Parse(ctx context.Context, code []byte) (*sitter.Tree, error) {
	for attempt := 0; ; attempt++ {
		sp := p.pool.Get().(*sitter.Parser)
		tree, err := sp.ParseCtx(ctx, nil, code)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// An interrupted parser resumes the old document on its next
			// call, and its cancellation flag may still be raised.
			sp.Close()
			if tree != nil {
				tree.Close()
			}
			return nil, ctxErr
		}
		if err == nil {
			p.pool.Put(sp)
			return tree, nil
		}
		sp.Close()
		// No operation limit is ever set, so this is a flag raised after an
		// earlier parse had already finished. A fresh parser is clean.
		if errors.Is(err, sitter.ErrOperationLimit) && attempt == 0 {
			continue
		}
		return nil, fmt.Errorf("parse error: %w", err)
	}
}
