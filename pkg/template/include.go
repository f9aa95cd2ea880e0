package template

import (
	"errors"

	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/stream"
)

// Loader resolves include references to compiled templates. relativeTo is
// the source name of the including template, so relative references resolve
// against it. A missing template must return an error wrapping ErrNotFound
// for include fallbacks to fire.
type Loader interface {
	Load(name, relativeTo string) (*Template, error)
}

// include splices the referenced template into the stream. The included
// events render under the including scope, so bindings and macros visible
// at the include site are visible inside.
func (rc *renderContext) include(info *includeInfo, pos stream.Pos, scope *eval.Scope) *stream.Stream {
	return stream.Generate(func(yield func(stream.Event) bool) error {
		href, _, err := attrValue(info.href, scope)
		if err != nil {
			return err
		}
		var inc *Template
		if rc.tmpl.loader == nil {
			err = errorf(CodeNotFound, pos, "no loader configured, cannot include %q", href)
		} else {
			inc, err = rc.tmpl.loader.Load(href, pos.Source)
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) && info.declared {
				return rc.flatten(info.fallback, scope).Pipe(yield)
			}
			return err
		}
		if rc.depth >= rc.tmpl.maxDepth {
			return errorf(CodeRecursionLimit, pos,
				"include of %q exceeds recursion depth %d", href, rc.tmpl.maxDepth)
		}
		rc.depth++
		defer func() { rc.depth-- }()
		return rc.flatten(inc.events, scope).Pipe(yield)
	})
}
