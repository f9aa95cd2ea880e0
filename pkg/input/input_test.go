package input

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/marka/pkg/stream"
)

func parseXML(t *testing.T, src string) []stream.Event {
	t.Helper()
	events, err := ParseXML(strings.NewReader(src), "test.xml").Events()
	require.NoError(t, err)
	return events
}

func TestParseXMLBasic(t *testing.T) {
	events := parseXML(t, `<root a="1"><child>hi</child></root>`)
	require.Len(t, events, 5)

	assert.Equal(t, stream.StartElement, events[0].Kind)
	el := events[0].Element()
	assert.Equal(t, "root", el.Name.Local)
	assert.Equal(t, "1", el.Attrs.Get("a"))

	assert.Equal(t, stream.StartElement, events[1].Kind)
	assert.Equal(t, "child", events[1].Name().Local)
	assert.Equal(t, stream.Text, events[2].Kind)
	assert.Equal(t, "hi", events[2].Text())
	assert.Equal(t, stream.EndElement, events[3].Kind)
	assert.Equal(t, stream.EndElement, events[4].Kind)
	assert.Equal(t, "root", events[4].Name().Local)
}

func TestParseXMLNamespaces(t *testing.T) {
	events := parseXML(t, `<root xmlns:h="http://www.w3.org/1999/xhtml"><h:p>x</h:p></root>`)

	assert.Equal(t, stream.StartNS, events[0].Kind)
	binding := events[0].Data.(stream.NSBinding)
	assert.Equal(t, "h", binding.Prefix)
	assert.Equal(t, "http://www.w3.org/1999/xhtml", binding.URI)

	assert.Equal(t, stream.StartElement, events[1].Kind)
	assert.Equal(t, "root", events[1].Name().Local)

	p := events[2]
	assert.Equal(t, stream.StartElement, p.Kind)
	assert.Equal(t, stream.QName{Space: "http://www.w3.org/1999/xhtml", Local: "p"}, p.Name())

	last := events[len(events)-1]
	assert.Equal(t, stream.EndNS, last.Kind)
	assert.Equal(t, "h", last.Data.(string))
}

func TestParseXMLDefaultNamespace(t *testing.T) {
	events := parseXML(t, `<root xmlns="urn:x"><a/></root>`)
	assert.Equal(t, stream.StartNS, events[0].Kind)
	assert.Equal(t, "", events[0].Data.(stream.NSBinding).Prefix)
	assert.Equal(t, stream.QName{Space: "urn:x", Local: "a"}, events[2].Name())
}

func TestParseXMLDoctypeAndPI(t *testing.T) {
	src := `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">` + "\n" +
		`<?php echo "x" ?><root/>`
	events := parseXML(t, src)

	var decl stream.DoctypeDecl
	var pi stream.ProcInst
	for _, ev := range events {
		switch ev.Kind {
		case stream.Doctype:
			decl = ev.Data.(stream.DoctypeDecl)
		case stream.PI:
			pi = ev.Data.(stream.ProcInst)
		}
	}
	assert.Equal(t, "html", decl.Name)
	assert.Equal(t, "-//W3C//DTD XHTML 1.0 Strict//EN", decl.PublicID)
	assert.Equal(t, "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd", decl.SystemID)
	assert.Equal(t, "php", pi.Target)
}

func TestParseXMLPositions(t *testing.T) {
	events := parseXML(t, "<root>\n  <child/>\n</root>")
	assert.Equal(t, 1, events[0].Pos.Line)
	assert.Equal(t, "test.xml", events[0].Pos.Source)
	assert.Equal(t, 2, events[2].Pos.Line)
}

func TestParseXMLMalformed(t *testing.T) {
	_, err := ParseXML(strings.NewReader("<root><a></root>"), "bad.xml").Events()
	assert.Error(t, err)
}

func TestParseHTMLVoidElements(t *testing.T) {
	events, err := ParseHTML(strings.NewReader(`<p>a<br>b<img src="x.png"></p>`), "test.html").Events()
	require.NoError(t, err)

	var kinds []stream.Kind
	var names []string
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == stream.StartElement || ev.Kind == stream.EndElement {
			names = append(names, ev.Name().Local)
		}
	}
	assert.Equal(t, []string{"p", "br", "br", "img", "img", "p"}, names)

	depth := 0
	for _, k := range kinds {
		switch k {
		case stream.StartElement:
			depth++
		case stream.EndElement:
			depth--
		}
		assert.GreaterOrEqual(t, depth, 0)
	}
	assert.Equal(t, 0, depth)
}

func TestParseHTMLClosedVoidElement(t *testing.T) {
	events, err := ParseHTML(strings.NewReader(`<p><br></br></p>`), "test.html").Events()
	require.NoError(t, err)
	var brs int
	for _, ev := range events {
		if ev.Name() == (stream.QName{Local: "br"}) {
			brs++
		}
	}
	// the explicit close is dropped, leaving one balanced pair
	assert.Equal(t, 2, brs)
}

func TestParseHTMLAttributesLowercased(t *testing.T) {
	events, err := ParseHTML(strings.NewReader(`<INPUT TYPE="checkbox" CHECKED>`), "test.html").Events()
	require.NoError(t, err)
	el := events[0].Element()
	assert.Equal(t, "input", el.Name.Local)
	assert.Equal(t, "checkbox", el.Attrs.Get("type"))
	assert.True(t, el.Attrs.Has("checked"))
}
