package chunk

// nameTypes are identifier node types that carry a definition's name.
var nameTypes = map[string]bool{
	"identifier":          true,
	"type_identifier":     true,
	"field_identifier":    true,
	"property_identifier": true,
	"constant":            true,
}

// symbolName finds the name of the definition at n, searching two levels
// down so Go type specs and receiver methods resolve.
func symbolName(n *Node, source []byte, cfg *LanguageConfig) string {
	if n == nil || source == nil {
		return ""
	}
	if cfg != nil && isWrapper(n.Type, cfg) {
		children := n.NamedChildren()
		for i := len(children) - 1; i >= 0; i-- {
			if name := symbolName(children[i], source, nil); name != "" {
				return name
			}
		}
		return ""
	}

	level := n.NamedChildren()
	for depth := 0; depth < 2 && len(level) > 0; depth++ {
		var next []*Node
		for _, c := range level {
			if nameTypes[c.Type] {
				return c.GetContent(source)
			}
			next = append(next, c.NamedChildren()...)
		}
		level = next
	}
	return ""
}

func isWrapper(nodeType string, cfg *LanguageConfig) bool {
	for _, w := range cfg.Wrappers {
		if w == nodeType {
			return true
		}
	}
	return false
}
