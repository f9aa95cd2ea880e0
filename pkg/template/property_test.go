package template_test

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/input"
	"github.com/conneroisu/marka/pkg/output"
	"github.com/conneroisu/marka/pkg/template"
)

// Rendering a template with no directives and no substitutions must pass
// the document through with order and content intact.
func TestRenderPreservesStaticMarkup(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("static documents survive the pipeline", prop.ForAll(
		func(items []string) bool {
			var src, want strings.Builder
			src.WriteString("<r>")
			for _, item := range items {
				src.WriteString("<i>" + item + "</i>")
			}
			src.WriteString("</r>")

			if len(items) == 0 {
				want.WriteString("<r/>")
			} else {
				want.WriteString("<r>")
				for _, item := range items {
					if item == "" {
						want.WriteString("<i/>")
					} else {
						want.WriteString("<i>" + item + "</i>")
					}
				}
				want.WriteString("</r>")
			}

			tmpl, err := template.New(input.ParseXML(strings.NewReader(src.String()), "p.xml"), "p.xml")
			if err != nil {
				return false
			}
			out, err := output.Render(tmpl.Render(nil, eval.Lenient), output.XML())
			if err != nil {
				return false
			}
			return out == want.String()
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
