// Package tcllist renders the historical Tcl list encoding used by the
// ring-master's LIST reply. Clients predate the daemon and still expect
// this exact bracketing, so the wire format cannot simply be replaced
// with JSON.
package tcllist

import "strings"

// element is either a bare string or a nested List.
type element struct {
	simple string
	sub    *List
	isSub  bool
}

// List is an ordered sequence of elements, each either a simple string or
// another List. Its String method renders the Tcl list encoding:
// "{" followed by every element (each followed by a single space)
// followed by "}".
type List struct {
	elements []element
}

// New returns an empty list.
func New() *List {
	return &List{}
}

// Add appends a simple element and returns the list for chaining.
// Embedded spaces or braces are not escaped -- callers must only pass
// values (ring names, pids, byte counts) that are already constrained to
// exclude them.
func (l *List) Add(s string) *List {
	l.elements = append(l.elements, element{simple: s})
	return l
}

// AddList appends a sublist and returns the list for chaining.
func (l *List) AddList(sub *List) *List {
	l.elements = append(l.elements, element{sub: sub, isSub: true})
	return l
}

// String renders the list, e.g. New().Add("a").Add("b").String() == "{a b }".
func (l *List) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for _, e := range l.elements {
		if e.isSub {
			b.WriteString(e.sub.String())
		} else {
			b.WriteString(e.simple)
		}
		b.WriteByte(' ')
	}
	b.WriteByte('}')
	return b.String()
}

// EncodeTopLevel renders l and strips exactly one leading "{" and one
// trailing "}", per the LIST reply's wire convention: the outer braces
// of the top-level list are never sent, so the wire form is a bare,
// space-separated sequence of "{name {data...}}" pairs.
func EncodeTopLevel(l *List) string {
	s := l.String()
	if len(s) >= 2 && strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s[1 : len(s)-1]
	}
	return s
}
