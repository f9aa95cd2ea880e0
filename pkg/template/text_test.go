package template_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/output"
	"github.com/conneroisu/marka/pkg/template"
)

func renderText(t *testing.T, src string, data map[string]any) string {
	t.Helper()
	tmpl, err := template.NewText(src, "test.txt")
	require.NoError(t, err)
	out, err := output.Render(tmpl.Render(data, eval.Lenient), output.Text())
	require.NoError(t, err)
	return out
}

func TestTextInterpolation(t *testing.T) {
	out := renderText(t, "Hello ${name}, you have $count messages.\n",
		map[string]any{"name": "Ada", "count": 3})
	assert.Equal(t, "Hello Ada, you have 3 messages.\n", out)
}

func TestTextForLoop(t *testing.T) {
	src := "Items:\n#for item in items\n * ${item}\n#end\nDone.\n"
	out := renderText(t, src, map[string]any{"items": []any{"a", "b"}})
	assert.Equal(t, "Items:\n * a\n * b\nDone.\n", out)
}

func TestTextIf(t *testing.T) {
	src := "#if urgent\nACT NOW\n#end\nregards\n"
	assert.Equal(t, "ACT NOW\nregards\n", renderText(t, src, map[string]any{"urgent": true}))
	assert.Equal(t, "regards\n", renderText(t, src, map[string]any{"urgent": false}))
}

func TestTextChoose(t *testing.T) {
	src := "#choose n\n#when 0\nnone\n#end\n#when 1\none\n#end\n#otherwise\nmany\n#end\n#end\n"
	assert.Equal(t, "none\n", renderText(t, src, map[string]any{"n": 0}))
	assert.Equal(t, "one\n", renderText(t, src, map[string]any{"n": 1}))
	assert.Equal(t, "many\n", renderText(t, src, map[string]any{"n": 7}))
}

func TestTextWithAndDef(t *testing.T) {
	src := "#def sig(name)\n-- ${name}\n#end\n#with who='ops'\n${sig(who)}\n#end\n"
	assert.Equal(t, "-- ops\n\n", renderText(t, src, nil))
}

func TestTextEscapedMarker(t *testing.T) {
	out := renderText(t, "\\#for real\n", nil)
	assert.Equal(t, "#for real\n", out)
}

func TestTextUnknownHashLineIsPlainText(t *testing.T) {
	out := renderText(t, "#1 priority\n", nil)
	assert.Equal(t, "#1 priority\n", out)
}

func TestTextMissingEnd(t *testing.T) {
	_, err := template.NewText("#if x\nbody\n", "bad.txt")
	require.Error(t, err)
	var terr *template.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, template.CodeSyntax, terr.Code)
}

func TestTextDanglingEnd(t *testing.T) {
	_, err := template.NewText("#end\n", "bad.txt")
	require.Error(t, err)
}

func TestTextMarkupDirectivesRejected(t *testing.T) {
	for _, src := range []string{"#match x\n#end\n", "#strip\n#end\n"} {
		_, err := template.NewText(src, "bad.txt")
		require.Error(t, err, src)
		var terr *template.Error
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, template.CodeBadDirective, terr.Code)
	}
}
