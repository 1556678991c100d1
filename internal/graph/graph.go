// Package graph is a typed intermediate form of an encoder filter graph.
// Compilers build Graph values; FilterComplex is the only place that turns
// them into filtergraph text, so escaping lives here and nowhere else.
package graph

import (
	"strconv"
	"strings"
)

type argKind int

const (
	kindNum argKind = iota
	kindInt
	kindStr
	kindExpr
	kindRaw
)

// Arg is one filter option. An empty Key makes it positional.
type Arg struct {
	Key  string
	kind argKind
	num  float64
	prec int
	text string
}

// Num is a float option. prec < 0 prints the shortest representation.
func Num(key string, v float64, prec int) Arg {
	return Arg{Key: key, kind: kindNum, num: v, prec: prec}
}

// Int is an integer option.
func Int(key string, v int) Arg {
	return Arg{Key: key, kind: kindInt, num: float64(v)}
}

// Str is a literal string option, such as a file path or overlay text.
func Str(key, v string) Arg {
	return Arg{Key: key, kind: kindStr, text: v}
}

// Expr is an encoder expression. It is quoted so embedded commas survive.
func Expr(key, v string) Arg {
	return Arg{Key: key, kind: kindExpr, text: v}
}

// Raw is a trusted token emitted as-is (enums such as "in" or "longest").
func Raw(key, v string) Arg {
	return Arg{Key: key, kind: kindRaw, text: v}
}

// Value returns the option value as the encoder will see it after unescaping.
func (a Arg) Value() string {
	switch a.kind {
	case kindNum:
		return strconv.FormatFloat(a.num, 'f', a.prec, 64)
	case kindInt:
		return strconv.Itoa(int(a.num))
	default:
		return a.text
	}
}

func (a Arg) serialize() string {
	var v string
	switch a.kind {
	case kindStr:
		v = escapeGraph(escapeOption(a.text))
	case kindExpr:
		v = "'" + strings.ReplaceAll(a.text, "'", "") + "'"
	default:
		v = a.Value()
	}
	if a.Key == "" {
		return v
	}
	return a.Key + "=" + v
}

// Stage is a single filter invocation.
type Stage struct {
	Name string
	Args []Arg
}

// NewStage is shorthand for Stage{Name: name, Args: args}.
func NewStage(name string, args ...Arg) Stage {
	return Stage{Name: name, Args: args}
}

// Arg returns the first argument with the given key.
func (s Stage) Arg(key string) (Arg, bool) {
	for _, a := range s.Args {
		if a.Key == key {
			return a, true
		}
	}
	return Arg{}, false
}

// String renders the stage with unescaped values. It is meant for logs and
// tests; use Graph.FilterComplex for encoder input.
func (s Stage) String() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	parts := make([]string, len(s.Args))
	for i, a := range s.Args {
		if a.Key == "" {
			parts[i] = a.Value()
		} else {
			parts[i] = a.Key + "=" + a.Value()
		}
	}
	return s.Name + "=" + strings.Join(parts, ":")
}

func (s Stage) serialize() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	parts := make([]string, len(s.Args))
	for i, a := range s.Args {
		parts[i] = a.serialize()
	}
	return s.Name + "=" + strings.Join(parts, ":")
}

// Chain is a linear run of stages between labelled pads.
type Chain struct {
	Name    string
	Inputs  []string
	Stages  []Stage
	Outputs []string
}

// Input is one encoder input file plus the options placed before its -i.
type Input struct {
	Path    string
	Options []string
}

// Graph is a complete render description. Maps name the labelled pads or
// input streams that become output streams, in order.
type Graph struct {
	Inputs []Input
	Chains []Chain
	Maps   []string
}

// AddInput appends an input and returns its index.
func (g *Graph) AddInput(path string, options ...string) int {
	g.Inputs = append(g.Inputs, Input{Path: path, Options: options})
	return len(g.Inputs) - 1
}

// Chain returns the chain with the given name or nil.
func (g *Graph) Chain(name string) *Chain {
	for i := range g.Chains {
		if g.Chains[i].Name == name {
			return &g.Chains[i]
		}
	}
	return nil
}

// FilterComplex serializes every chain with stages into filtergraph syntax.
// A chain without stages is skipped; its pads must not be referenced.
func (g *Graph) FilterComplex() string {
	var chains []string
	for _, c := range g.Chains {
		if len(c.Stages) == 0 {
			continue
		}
		var b strings.Builder
		for _, in := range c.Inputs {
			b.WriteString("[" + in + "]")
		}
		for i, s := range c.Stages {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(s.serialize())
		}
		for _, out := range c.Outputs {
			b.WriteString("[" + out + "]")
		}
		chains = append(chains, b.String())
	}
	return strings.Join(chains, ";")
}

// escapeOption applies the option-level escaping for a literal value.
func escapeOption(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	return r.Replace(s)
}

// escapeGraph applies the filtergraph-level escaping on top of escapeOption.
func escapeGraph(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
	return r.Replace(s)
}
