package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSliceSinglePass(t *testing.T) {
	s := FromSlice([]Event{
		{Kind: Text, Data: "a"},
		{Kind: Text, Data: "b"},
	})

	ev, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "a", ev.Text())

	ev, ok = s.Next()
	require.True(t, ok)
	assert.Equal(t, "b", ev.Text())

	_, ok = s.Next()
	assert.False(t, ok, "exhausted stream must stay exhausted")
	_, ok = s.Next()
	assert.False(t, ok)
	assert.NoError(t, s.Err())
}

func TestGenerateLazy(t *testing.T) {
	produced := 0
	s := Generate(func(yield func(Event) bool) error {
		for i := 0; i < 3; i++ {
			produced++
			if !yield(Event{Kind: Text, Data: "x"}) {
				return nil
			}
		}
		return nil
	})
	defer s.Close()

	_, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, 1, produced, "producer must suspend between pulls")

	_, ok = s.Next()
	require.True(t, ok)
	assert.Equal(t, 2, produced)
}

func TestGenerateError(t *testing.T) {
	boom := errors.New("boom")
	s := Generate(func(yield func(Event) bool) error {
		yield(Event{Kind: Text, Data: "ok"})
		return boom
	})
	defer s.Close()

	_, ok := s.Next()
	require.True(t, ok)
	_, ok = s.Next()
	require.False(t, ok)
	assert.ErrorIs(t, s.Err(), boom)
}

func TestGenerateAbandon(t *testing.T) {
	s := Generate(func(yield func(Event) bool) error {
		for {
			if !yield(Event{Kind: Text, Data: "x"}) {
				return nil
			}
		}
	})
	_, ok := s.Next()
	require.True(t, ok)
	s.Close()
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestSubtree(t *testing.T) {
	div := Name("div")
	span := Name("span")
	s := FromSlice([]Event{
		{Kind: StartElement, Data: Element{Name: span}},
		{Kind: Text, Data: "inner"},
		{Kind: EndElement, Data: span},
		{Kind: EndElement, Data: div},
		{Kind: Text, Data: "after"},
	})

	var got []Event
	end, err := s.Subtree(func(ev Event) bool {
		got = append(got, ev)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, EndElement, end.Kind)
	assert.Equal(t, div, end.Name())
	require.Len(t, got, 3)

	// The tail after the subtree is still available.
	ev, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "after", ev.Text())
}

func TestAttrsCopyOnWrite(t *testing.T) {
	orig := Attrs{{Name: Name("href"), Value: "#"}}
	with := orig.Set(Name("title"), "Foo")
	assert.Len(t, orig, 1, "Set must not mutate the receiver")
	assert.Equal(t, "Foo", with.Get("title"))

	replaced := with.Set(Name("title"), "Bar")
	assert.Equal(t, "Foo", with.Get("title"))
	assert.Equal(t, "Bar", replaced.Get("title"))

	removed := replaced.Remove(Name("href"))
	assert.True(t, replaced.Has("href"))
	assert.False(t, removed.Has("href"))
}

func TestQName(t *testing.T) {
	q := Name("http://www.w3.org/1999/xhtml}body")
	assert.Equal(t, "http://www.w3.org/1999/xhtml", q.Space)
	assert.Equal(t, "body", q.Local)

	html := Namespace("http://www.w3.org/1999/xhtml")
	assert.True(t, html.Contains(q))
	assert.Equal(t, q, html.Name("body"))
	assert.False(t, html.Contains(Name("body")))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, Markup(`&lt;a href=&#34;x&#34;&gt;&amp;`), Escape(`<a href="x">&`))
	assert.Equal(t, `<b>`, Markup("&lt;b&gt;").Unescape())

	// Already-safe values pass through untouched.
	safe := Markup("<b>bold</b>")
	assert.Equal(t, safe, Escape(safe))
}

func TestConcatPropagatesSafety(t *testing.T) {
	got := Concat(Markup("<b>safe</b>"), " & plain <i>")
	assert.Equal(t, Markup("<b>safe</b> &amp; plain &lt;i&gt;"), got)
}
