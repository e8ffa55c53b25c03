package feed

import (
	"strconv"
	"strings"
)

// Accessor extracts one value from a node, reporting whether it found a non-empty one.
type Accessor func(*Node) (string, bool)

// textKeys are the attribute and child names under which feeds carry a node's value.
var textKeys = []string{"name", "value", "text", "content"}

// FirstOf combines accessors with a first-non-empty strategy.
func FirstOf(accs ...Accessor) Accessor {
	return func(n *Node) (string, bool) {
		for _, acc := range accs {
			if v, ok := acc(n); ok {
				return v, true
			}
		}
		return "", false
	}
}

// PlainText reads the node's own character data.
func PlainText(n *Node) (string, bool) {
	if n == nil || n.Text == "" {
		return "", false
	}
	return n.Text, true
}

// AttrValue reads a named attribute.
func AttrValue(local string) Accessor {
	return func(n *Node) (string, bool) {
		v, ok := n.Attr(local)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
}

// ChildValue reads the text of a named child using TextOf.
func ChildValue(local string) Accessor {
	return func(n *Node) (string, bool) {
		for _, c := range n.ChildrenNamed(local) {
			if v := TextOf(c); v != "" {
				return v, true
			}
		}
		return "", false
	}
}

var textOf Accessor

func init() {
	accs := []Accessor{PlainText}
	for _, k := range textKeys {
		accs = append(accs, AttrValue(k))
	}
	for _, k := range textKeys {
		accs = append(accs, ChildValue(k))
	}
	textOf = FirstOf(accs...)
}

// TextOf returns the first non-empty value of a name/text-like node. It
// accepts plain character data, a value under one of the known attribute
// or child keys, and a nested name element (itself in any of these shapes).
func TextOf(n *Node) string {
	if n == nil {
		return ""
	}
	v, _ := textOf(n)
	return v
}

// parseNumber reads decimals written with either a dot or a comma.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func numberAttr(n *Node, local string) *float64 {
	v, ok := n.Attr(local)
	if !ok {
		return nil
	}
	f, ok := parseNumber(v)
	if !ok {
		return nil
	}
	return &f
}
