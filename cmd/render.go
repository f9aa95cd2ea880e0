package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/marka/internal/preview"
	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/loader"
	"github.com/conneroisu/marka/pkg/output"
	"github.com/conneroisu/marka/pkg/template"
)

var (
	renderDataFile string
	renderMethod   string
	renderStrict   bool
	renderOut      string
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Render a template to stdout or a file",
	Long: `Render a template with data from an optional YAML file.

The template is resolved against the configured search path
(templates.paths). Variables come from the top-level mapping of the
data file.

Examples:
  marka render page.html
  marka render page.html --data site.yml
  marka render report.txt --method text --strict
  marka render page.html -o out/page.html`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderDataFile, "data", "d", "", "YAML file with template variables")
	renderCmd.Flags().StringVarP(&renderMethod, "method", "m", "", "serialization method (xml, xhtml, html, text)")
	renderCmd.Flags().BoolVar(&renderStrict, "strict", false, "fail on undefined variables")
	renderCmd.Flags().StringVarP(&renderOut, "output", "o", "", "write output to file instead of stdout")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	method := cfg.Render.Method
	if renderMethod != "" {
		method = renderMethod
	}
	ser, err := output.ByMethod(method)
	if err != nil {
		return err
	}

	l, err := loader.New(cfg.Templates.Paths,
		loader.WithTemplateOptions(template.WithMaxRecursion(cfg.Render.MaxRecursion)))
	if err != nil {
		return err
	}
	defer l.Close()

	tmpl, err := l.Load(args[0], "")
	if err != nil {
		return err
	}

	var data map[string]any
	if renderDataFile != "" {
		if data, err = preview.LoadData(renderDataFile); err != nil {
			return err
		}
	}

	mode := eval.Lenient
	if renderStrict || cfg.Render.Strict {
		mode = eval.Strict
	}
	rendered, err := output.Render(tmpl.Render(data, mode), ser)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", args[0], err)
	}

	if renderOut != "" {
		return os.WriteFile(renderOut, []byte(rendered), 0o644)
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}
