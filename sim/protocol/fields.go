package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Fields reads named scalar fields.
type Fields interface {
	String(name string) (string, error)
	Int(name string) (int, error)
}

// Node is a read-only view of one document element.
// The zero Node has no children and no fields.
type Node struct {
	el *etree.Element
}

// NodeOf wraps el.
func NodeOf(el *etree.Element) Node {
	return Node{el: el}
}

// Name returns the element tag, or "" for the zero Node.
func (n Node) Name() string {
	if n.el == nil {
		return ""
	}
	return n.el.Tag
}

// Child returns the first child element with the given name.
func (n Node) Child(name string) (Node, bool) {
	if n.el == nil {
		return Node{}, false
	}
	child := n.el.SelectElement(name)
	if child == nil {
		return Node{}, false
	}
	return Node{el: child}, true
}

// Children returns every child element with the given name, in document order.
func (n Node) Children(name string) []Node {
	if n.el == nil {
		return nil
	}
	elems := n.el.SelectElements(name)
	out := make([]Node, len(elems))
	for i, el := range elems {
		out[i] = Node{el: el}
	}
	return out
}

// String returns the trimmed text of the named child.
func (n Node) String(name string) (string, error) {
	child, ok := n.Child(name)
	if !ok {
		return "", fmt.Errorf("%w: <%s> in <%s>", ErrMissingField, name, n.Name())
	}
	return strings.TrimSpace(child.el.Text()), nil
}

// Int returns the named child's text parsed as a decimal integer.
func (n Node) Int(name string) (int, error) {
	s, err := n.String(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: <%s> in <%s> is not an integer: %q", ErrMissingField, name, n.Name(), s)
	}
	return v, nil
}

// setInt appends <name>v</name> to el.
func setInt(el *etree.Element, name string, v int) {
	el.CreateElement(name).SetText(strconv.Itoa(v))
}
