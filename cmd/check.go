package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/marka/pkg/loader"
	"github.com/conneroisu/marka/pkg/template"
)

var checkCmd = &cobra.Command{
	Use:   "check <file-or-dir>...",
	Short: "Validate templates without rendering them",
	Long: `Compile each template and report syntax or directive errors with
their source positions. Directories are walked recursively; files with
an unrecognized extension are skipped.

Examples:
  marka check templates/
  marka check page.html mail.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// templateExts lists the extensions check treats as templates when
// walking a directory.
var templateExts = map[string]bool{
	".html":  true,
	".xhtml": true,
	".xml":   true,
	".txt":   true,
	".text":  true,
}

func runCheck(cmd *cobra.Command, args []string) error {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && templateExts[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	failed := 0
	for _, file := range files {
		if err := checkFile(file); err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", file, checkMessage(err))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", file)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d templates failed", failed, len(files))
	}
	return nil
}

// checkFile compiles a single template through a loader rooted at the
// file's directory, so relative includes still resolve.
func checkFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	l, err := loader.New([]string{filepath.Dir(abs)})
	if err != nil {
		return err
	}
	defer l.Close()
	_, err = l.Load(filepath.Base(abs), "")
	return err
}

// checkMessage prefers the template error's own position-carrying
// message over wrapper text.
func checkMessage(err error) string {
	var terr *template.Error
	if errors.As(err, &terr) {
		return terr.Error()
	}
	return err.Error()
}
