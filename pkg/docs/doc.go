// Package docs documents the marka template engine.
//
// Marka renders XML, XHTML, HTML and plain-text templates by streaming
// markup events through directive processors. Templates are ordinary
// documents annotated with attributes from the http://marka.dev/ns/
// namespace and ${...} expression interpolation.
//
// # Quick Start
//
//	// Render a template from the command line
//	marka render page.html --data site.yml
//
//	// Validate templates without rendering
//	marka check templates/
//
//	// Preview templates with live reload
//	marka serve
//
// # Architecture
//
// The engine is organized as a pipeline of small packages:
//
//   - pkg/stream: markup events, qualified names, lazy pull streams
//   - pkg/input: XML and HTML parsers producing event streams
//   - pkg/eval: the expression language, scopes and lookup modes
//   - pkg/path: the selection language used by match rules and select()
//   - pkg/template: the compiler, directives, macros and match pipeline
//   - pkg/output: XML, XHTML, HTML and text serializers
//   - pkg/loader: search-path template loading with caching and reload
//
// A compiled template is a flat event slice; rendering walks it once,
// expanding directives and expressions lazily, then pushes the result
// through any registered match rules before serialization.
//
// # Library Use
//
//	src, _ := input.ParseXML(f, "page.html")
//	tmpl, _ := template.New(src, "page.html")
//	out, _ := output.Render(tmpl.Render(data, eval.Lenient), output.XML())
package docs
