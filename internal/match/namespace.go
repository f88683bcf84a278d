package match

import "strings"

// Namespace accumulates the template variables of one request. Keys are
// namespaced by origin, for example match.path.tenantId or
// request.header.Accept. A namespace lives for a single request.
type Namespace struct {
	vars map[string]string
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{vars: map[string]string{}}
}

// Set stores a variable, overwriting any previous value.
func (n *Namespace) Set(key, value string) {
	n.vars[key] = value
}

// Get returns a variable by its full namespaced key.
func (n *Namespace) Get(key string) (string, bool) {
	v, ok := n.vars[key]
	return v, ok
}

// Merge copies all entries of vars into the namespace.
func (n *Namespace) Merge(vars map[string]string) {
	for k, v := range vars {
		n.vars[k] = v
	}
}

// Len reports the number of variables held.
func (n *Namespace) Len() int {
	return len(n.vars)
}

// Apply substitutes every ${key} occurrence in s with the variable's
// value, in a single pass. Replacement values are never re-scanned, so
// applying the result a second time is a no-op once all placeholders
// are consumed.
func (n *Namespace) Apply(s string) string {
	if len(n.vars) == 0 || !strings.Contains(s, "${") {
		return s
	}
	pairs := make([]string, 0, len(n.vars)*2)
	for k, v := range n.vars {
		pairs = append(pairs, "${"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
