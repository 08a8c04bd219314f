package genotype

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gpbreed/internal/funcset"
	"gpbreed/internal/gptype"
)

var ErrSyntax = errors.New("tree syntax error")

// Parse reads the lisp form produced by String, e.g. "(add x (mul x one))",
// and validates the result against typ.
func Parse(fs *funcset.FunctionSet, typ *gptype.Type, src string) (*Tree, error) {
	p := &parser{fs: fs, toks: tokenize(src)}
	t := NewTree(typ)
	if err := p.node(t, NoNode, 0); err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%w: trailing %q", ErrSyntax, p.toks[p.pos])
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

type parser struct {
	fs   *funcset.FunctionSet
	toks []string
	pos  int
}

func (p *parser) next() (string, bool) {
	if p.pos >= len(p.toks) {
		return "", false
	}
	tok := p.toks[p.pos]
	p.pos++
	return tok, true
}

func (p *parser) node(t *Tree, parent NodeID, argPos int) error {
	tok, ok := p.next()
	if !ok {
		return fmt.Errorf("%w: unexpected end of input", ErrSyntax)
	}
	if tok == ")" {
		return fmt.Errorf("%w: unexpected )", ErrSyntax)
	}
	if tok != "(" {
		tpl, err := p.fs.Lookup(tok)
		if err != nil {
			return err
		}
		if !tpl.IsTerminal() {
			return fmt.Errorf("%w: %s needs %d arguments", ErrSyntax, tok, tpl.Arity())
		}
		t.Add(tpl, parent, argPos)
		return nil
	}

	name, ok := p.next()
	if !ok || name == "(" || name == ")" {
		return fmt.Errorf("%w: expected node name after (", ErrSyntax)
	}
	tpl, err := p.fs.Lookup(name)
	if err != nil {
		return err
	}
	id := t.Add(tpl, parent, argPos)
	for i := 0; i < tpl.Arity(); i++ {
		if err := p.node(t, id, i); err != nil {
			return err
		}
	}
	if tok, ok := p.next(); !ok || tok != ")" {
		return fmt.Errorf("%w: %s expects %d arguments", ErrSyntax, name, tpl.Arity())
	}
	return nil
}

func tokenize(src string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range src {
		switch {
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}
