package stream

// Attr is one element attribute. In a rendered stream the value is a string;
// inside a compiled template an attribute value may instead be a []Event
// holding interpolated text and expression events.
type Attr struct {
	Name  QName
	Value any
}

// Attrs is an ordered, duplicate-free attribute list. All modifying methods
// return a new list, leaving the receiver untouched, so events stay
// immutable once emitted.
type Attrs []Attr

// Get returns the string value of the named attribute, or "" when absent.
func (a Attrs) Get(name string) string {
	for _, attr := range a {
		if attr.Name.Local == name && attr.Name.Space == "" {
			if s, ok := attr.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// GetQ returns the value of the attribute with the given qualified name and
// whether it was present.
func (a Attrs) GetQ(name QName) (any, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return nil, false
}

// Has reports whether an attribute with the given local name is present in
// the default namespace.
func (a Attrs) Has(name string) bool {
	for _, attr := range a {
		if attr.Name.Local == name && attr.Name.Space == "" {
			return true
		}
	}
	return false
}

// Set returns a copy with the named attribute set to value. An existing
// attribute keeps its position; a new one is appended.
func (a Attrs) Set(name QName, value any) Attrs {
	out := make(Attrs, len(a), len(a)+1)
	copy(out, a)
	for i, attr := range out {
		if attr.Name == name {
			out[i] = Attr{Name: name, Value: value}
			return out
		}
	}
	return append(out, Attr{Name: name, Value: value})
}

// Remove returns a copy without the named attribute. Removing an absent
// attribute is a no-op.
func (a Attrs) Remove(name QName) Attrs {
	for i, attr := range a {
		if attr.Name == name {
			out := make(Attrs, 0, len(a)-1)
			out = append(out, a[:i]...)
			return append(out, a[i+1:]...)
		}
	}
	return a
}
