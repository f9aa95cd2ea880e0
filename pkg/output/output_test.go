package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/marka/pkg/input"
	"github.com/conneroisu/marka/pkg/stream"
)

func roundtrip(t *testing.T, src string, ser Serializer) string {
	t.Helper()
	out, err := Render(input.ParseXML(strings.NewReader(src), "test.xml"), ser)
	require.NoError(t, err)
	return out
}

func TestXMLRoundtrip(t *testing.T) {
	src := `<root a="1"><child>hi &amp; bye</child></root>`
	assert.Equal(t, src, roundtrip(t, src, XML()))
}

func TestXMLCollapsesEmptyElements(t *testing.T) {
	out := roundtrip(t, `<root><empty></empty><div></div></root>`, XML())
	assert.Equal(t, `<root><empty/><div/></root>`, out)
}

func TestXHTMLCollapsesOnlyVoidElements(t *testing.T) {
	out := roundtrip(t, `<html><br></br><div></div></html>`, XHTML())
	assert.Equal(t, `<html><br /><div></div></html>`, out)
}

func TestXMLNamespacePrefixes(t *testing.T) {
	src := `<root xmlns:h="urn:html"><h:p h:class="x">text</h:p></root>`
	assert.Equal(t, src, roundtrip(t, src, XML()))
}

func TestXMLDefaultNamespace(t *testing.T) {
	src := `<root xmlns="urn:doc"><child>x</child></root>`
	assert.Equal(t, src, roundtrip(t, src, XML()))
}

func TestXMLEscapesAttributeQuotes(t *testing.T) {
	events := []stream.Event{
		{Kind: stream.StartElement, Data: stream.Element{
			Name:  stream.QName{Local: "a"},
			Attrs: stream.Attrs{{Name: stream.QName{Local: "title"}, Value: `say "hi" <now>`}},
		}},
		{Kind: stream.EndElement, Data: stream.QName{Local: "a"}},
	}
	out, err := Render(stream.FromSlice(events), XML())
	require.NoError(t, err)
	assert.Equal(t, `<a title="say &#34;hi&#34; &lt;now&gt;"/>`, out)
}

func TestXMLPreservesSafeMarkup(t *testing.T) {
	events := []stream.Event{
		{Kind: stream.StartElement, Data: stream.Element{Name: stream.QName{Local: "p"}}},
		{Kind: stream.Text, Data: stream.Markup("<b>bold</b>")},
		{Kind: stream.Text, Data: "<i>plain</i>"},
		{Kind: stream.EndElement, Data: stream.QName{Local: "p"}},
	}
	out, err := Render(stream.FromSlice(events), XML())
	require.NoError(t, err)
	assert.Equal(t, `<p><b>bold</b>&lt;i&gt;plain&lt;/i&gt;</p>`, out)
}

func TestHTMLVoidAndBooleanAttrs(t *testing.T) {
	events := []stream.Event{
		{Kind: stream.StartElement, Data: stream.Element{
			Name: stream.QName{Local: "input"},
			Attrs: stream.Attrs{
				{Name: stream.QName{Local: "type"}, Value: "checkbox"},
				{Name: stream.QName{Local: "checked"}, Value: "checked"},
			},
		}},
		{Kind: stream.EndElement, Data: stream.QName{Local: "input"}},
	}
	out, err := Render(stream.FromSlice(events), HTML())
	require.NoError(t, err)
	assert.Equal(t, `<input type="checkbox" checked>`, out)
}

func TestHTMLRawTextElements(t *testing.T) {
	events := []stream.Event{
		{Kind: stream.StartElement, Data: stream.Element{Name: stream.QName{Local: "script"}}},
		{Kind: stream.Text, Data: "if (a < b && c > d) go();"},
		{Kind: stream.EndElement, Data: stream.QName{Local: "script"}},
	}
	out, err := Render(stream.FromSlice(events), HTML())
	require.NoError(t, err)
	assert.Equal(t, `<script>if (a < b && c > d) go();</script>`, out)
}

func TestTextStripsMarkup(t *testing.T) {
	out := roundtrip(t, `<p>Some <em>text</em> &amp; more</p>`, Text())
	assert.Equal(t, "Some text & more", out)
}

func TestDoctypeSerialization(t *testing.T) {
	events := []stream.Event{
		{Kind: stream.Doctype, Data: stream.DoctypeDecl{
			Name:     "html",
			PublicID: "-//W3C//DTD XHTML 1.0 Strict//EN",
			SystemID: "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd",
		}},
		{Kind: stream.StartElement, Data: stream.Element{Name: stream.QName{Local: "html"}}},
		{Kind: stream.EndElement, Data: stream.QName{Local: "html"}},
	}
	out, err := Render(stream.FromSlice(events), XML())
	require.NoError(t, err)
	assert.Equal(t, `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd"><html/>`, out)
}

func TestCommentAndPI(t *testing.T) {
	src := `<root><!-- note --><?php echo 1 ?></root>`
	assert.Equal(t, src, roundtrip(t, src, XML()))
}
