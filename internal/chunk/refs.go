package chunk

import (
	"sort"
	"strings"
)

// callTypes are the call site node types across the built-in grammars.
var callTypes = map[string]bool{
	"call_expression":   true,
	"call":              true,
	"function_call":     true,
	"method_invocation": true,
}

// refTypes are the identifier node types a reference can be made of.
var refTypes = map[string]bool{
	"identifier":                    true,
	"type_identifier":               true,
	"field_identifier":              true,
	"property_identifier":           true,
	"shorthand_property_identifier": true,
}

// maxRefTargets bounds how many definitions one name may link to. Names
// defined more often than this are left unlinked.
const maxRefTargets = 4

type refSite struct {
	line int
	ref  Ref
}

// collectRefs records the call sites and identifiers under root with the
// line they start on. Definition names and parameter names are skipped.
func (s *splitter) collectRefs(root *Node) {
	defs := make(map[string]bool, len(s.cfg.Definitions))
	for _, d := range s.cfg.Definitions {
		defs[d] = true
	}
	skip := make(map[*Node]bool)

	var visit func(n, parent *Node)
	visit = func(n, parent *Node) {
		switch {
		case callTypes[n.Type]:
			if callee := calleeName(n); callee != nil {
				skip[callee] = true
				s.addRef(callee, true)
			}
		case defs[n.Type] || n.Type == "type_spec":
			for _, c := range n.NamedChildren() {
				if refTypes[c.Type] {
					skip[c] = true
					break
				}
			}
		case refTypes[n.Type] && !skip[n]:
			if parent == nil || n.Type != "identifier" || !strings.Contains(parent.Type, "parameter") {
				s.addRef(n, false)
			}
		}
		for _, c := range n.Children {
			visit(c, n)
		}
	}
	visit(root, nil)

	sort.SliceStable(s.refs, func(i, j int) bool { return s.refs[i].line < s.refs[j].line })
}

func (s *splitter) addRef(n *Node, call bool) {
	if name := n.GetContent(s.source); name != "" {
		s.refs = append(s.refs, refSite{line: n.firstLine(), ref: Ref{Name: name, Call: call}})
	}
}

// calleeName returns the identifier naming the function a call invokes:
// the callee itself, or the last name of a member or scoped callee.
func calleeName(call *Node) *Node {
	var last *Node
	for _, c := range call.NamedChildren() {
		if strings.Contains(c.Type, "argument") {
			break
		}
		if refTypes[c.Type] {
			last = c
			continue
		}
		for _, g := range c.NamedChildren() {
			if refTypes[g.Type] {
				last = g
			}
		}
	}
	return last
}

// refsIn returns the distinct refs on lines a..b in source order.
func (s *splitter) refsIn(a, b int) []Ref {
	i := sort.Search(len(s.refs), func(i int) bool { return s.refs[i].line >= a })
	var out []Ref
	seen := make(map[Ref]bool)
	for ; i < len(s.refs) && s.refs[i].line <= b; i++ {
		r := s.refs[i].ref
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Symbol is a chunk that defines a name references can resolve to.
type Symbol struct {
	ID       string
	Name     string
	Language string
	FilePath string
}

// SymbolsOf returns the symbols the chunks define. A force-split unit is
// represented by its first piece only.
func SymbolsOf(chunks []*Chunk) []Symbol {
	first := make(map[string]*Chunk)
	for _, c := range chunks {
		if c.Symbol == "" || c.ParentID == "" {
			continue
		}
		if f, ok := first[c.ParentID]; !ok || c.SequenceIndex < f.SequenceIndex {
			first[c.ParentID] = c
		}
	}
	var out []Symbol
	for _, c := range chunks {
		if c.Symbol == "" || (c.ParentID != "" && first[c.ParentID] != c) {
			continue
		}
		out = append(out, Symbol{ID: c.ID, Name: c.Symbol, Language: c.Language, FilePath: c.FilePath})
	}
	return out
}

// ReferenceEdges links every chunk to the symbols its refs name within the
// same language: EdgeCalls for call sites and EdgeUses otherwise. Self
// references and duplicates are dropped, and a name is linked only when it
// resolves to at most a few definitions.
func ReferenceEdges(chunks []*Chunk, symbols []Symbol) []Edge {
	type key struct{ lang, name string }
	index := make(map[key][]string)
	seenDef := make(map[string]bool)
	for _, sym := range symbols {
		if seenDef[sym.ID] {
			continue
		}
		seenDef[sym.ID] = true
		k := key{sym.Language, sym.Name}
		index[k] = append(index[k], sym.ID)
	}

	var edges []Edge
	seen := make(map[Edge]bool)
	for _, c := range chunks {
		for _, r := range c.Refs {
			targets := index[key{c.Language, r.Name}]
			if len(targets) > maxRefTargets {
				continue
			}
			kind := EdgeUses
			if r.Call {
				kind = EdgeCalls
			}
			for _, id := range targets {
				e := Edge{Source: c.ID, Target: id, Kind: kind}
				if id == c.ID || seen[e] {
					continue
				}
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}
	return edges
}
