// Package script interprets the cyclic symbolic control string that selects
// which operators drive each step.
package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Symbol is one letter of the control alphabet.
type Symbol uint8

const (
	Idle Symbol = iota
	Entangle
	Cohere
	Distort
)

// DefaultScript is used when the caller supplies none.
const DefaultScript = "entangle*4,cohere*3,distort*3,entangle,cohere,distort"

var (
	ErrEmptyScript   = errors.New("script: no symbols")
	ErrUnknownSymbol = errors.New("script: unknown symbol")
	ErrBadRepeat     = errors.New("script: bad repeat count")
)

var symbolNames = [...]string{
	Idle:     "idle",
	Entangle: "entangle",
	Cohere:   "cohere",
	Distort:  "distort",
}

func (s Symbol) String() string {
	if int(s) < len(symbolNames) {
		return symbolNames[s]
	}
	return fmt.Sprintf("symbol(%d)", s)
}

// Alphabet returns the four symbols in a stable order.
func Alphabet() []Symbol {
	return []Symbol{Entangle, Cohere, Distort, Idle}
}

// ParseSymbol resolves a symbol name, case-insensitively.
func ParseSymbol(name string) (Symbol, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range symbolNames {
		if n == name {
			return Symbol(i), nil
		}
	}
	return Idle, fmt.Errorf("%w %q", ErrUnknownSymbol, name)
}

// Parse reads a comma- or whitespace-separated script. A token "sym*N"
// (or "sym×N") stands for N copies of sym.
func Parse(text string) ([]Symbol, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})

	var out []Symbol
	for _, f := range fields {
		name, count := f, 1
		if i := strings.IndexAny(f, "*×"); i >= 0 {
			name = f[:i]
			rest := strings.TrimLeft(f[i:], "*×")
			n, err := strconv.Atoi(rest)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("%w in %q", ErrBadRepeat, f)
			}
			count = n
		}
		sym, err := ParseSymbol(name)
		if err != nil {
			return nil, err
		}
		for j := 0; j < count; j++ {
			out = append(out, sym)
		}
	}

	if len(out) == 0 {
		return nil, ErrEmptyScript
	}
	return out, nil
}

// Format renders symbols back to the canonical comma-separated form,
// collapsing runs into "sym*N".
func Format(syms []Symbol) string {
	var parts []string
	for i := 0; i < len(syms); {
		j := i
		for j < len(syms) && syms[j] == syms[i] {
			j++
		}
		if n := j - i; n > 1 {
			parts = append(parts, fmt.Sprintf("%s*%d", syms[i], n))
		} else {
			parts = append(parts, syms[i].String())
		}
		i = j
	}
	return strings.Join(parts, ",")
}

// Interpreter walks a script cyclically, holding each symbol for dwell steps.
type Interpreter struct {
	symbols []Symbol
	dwell   int
	cursor  int
	repeat  int
}

// New creates an interpreter. dwell below 1 is treated as 1.
func New(symbols []Symbol, dwell int) (*Interpreter, error) {
	if len(symbols) == 0 {
		return nil, ErrEmptyScript
	}
	if dwell < 1 {
		dwell = 1
	}
	return &Interpreter{
		symbols: append([]Symbol(nil), symbols...),
		dwell:   dwell,
	}, nil
}

// Next returns the symbol active for the current step and advances.
func (it *Interpreter) Next() Symbol {
	sym := it.symbols[it.cursor]
	it.repeat++
	if it.repeat >= it.dwell {
		it.repeat = 0
		it.cursor = (it.cursor + 1) % len(it.symbols)
	}
	return sym
}

// Peek returns the symbol the next call to Next will return.
func (it *Interpreter) Peek() Symbol {
	return it.symbols[it.cursor]
}

// Len returns the script length in symbols.
func (it *Interpreter) Len() int { return len(it.symbols) }

// Period returns the number of steps in one full cycle of the script.
func (it *Interpreter) Period() int { return len(it.symbols) * it.dwell }
