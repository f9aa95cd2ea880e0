package stream

import "strings"

// QName is a qualified element or attribute name: a namespace URI plus a
// local name. Names compare by exact (Space, Local) equality; an unprefixed
// name has an empty Space.
type QName struct {
	Space string
	Local string
}

// Name builds a QName from "{uri}local" notation, or a plain local name
// when no URI is present.
func Name(qname string) QName {
	if uri, local, ok := strings.Cut(qname, "}"); ok {
		return QName{Space: strings.TrimPrefix(uri, "{"), Local: local}
	}
	return QName{Local: qname}
}

func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}

// IsZero reports whether the name is empty.
func (q QName) IsZero() bool {
	return q.Space == "" && q.Local == ""
}

// Namespace constructs and tests qualified names under one URI.
type Namespace string

// Name returns the qualified name for local within the namespace.
func (n Namespace) Name(local string) QName {
	return QName{Space: string(n), Local: local}
}

// Contains reports whether the qualified name belongs to the namespace.
func (n Namespace) Contains(q QName) bool {
	return q.Space == string(n)
}

// XMLNamespace is the namespace of xml:lang, xml:space and friends.
const XMLNamespace = Namespace("http://www.w3.org/XML/1998/namespace")
