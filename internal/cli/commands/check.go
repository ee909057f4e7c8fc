package commands

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/starbind/internal/cli/output"
	"github.com/leapstack-labs/starbind/internal/engine"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [files or dirs...]",
		Short: "Report script overrides without running them",
		Long: `Statically analyze scripts and report, for every subclass(...) definition,
how each method relates to the native base class:

  override   replaces a virtual method; native callers dispatch to it
  shadow     hides a non-virtual method; only scripts see it
  new        adds a method the native class lacks
  init       the script constructor

A subclass whose base cannot be resolved fails the check.`,
		Example: `  # Check the scripts directory
  starbind check

  # Check one file as JSON
  starbind check scripts/ext.star -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			paths, err := resolveScripts(cmdCtx.Engine, cmdCtx.Cfg, args)
			if err != nil {
				return err
			}
			results, err := cmdCtx.Engine.Check(paths)
			if err != nil {
				return err
			}

			if ok, err := cmdCtx.Renderer.Structured(results); ok {
				if err != nil {
					return err
				}
			} else {
				renderCheckResults(cmdCtx.Renderer, results)
			}

			severe := 0
			for _, res := range results {
				severe += res.Severe()
			}
			if severe > 0 {
				return fmt.Errorf("%d unresolved base class(es)", severe)
			}
			return nil
		},
	}
}

func renderCheckResults(r *output.Renderer, results []*engine.CheckResult) {
	styles := r.Styles()
	for _, res := range results {
		r.Header(displayPath(res.Script.FilePath))
		if len(res.Findings) == 0 {
			r.Println(r.Muted("no subclasses"))
			r.Println()
			continue
		}

		t := table.NewWriter()
		t.SetOutputMirror(r.Writer())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Line", "Class", "Base", "Method", "Kind"})
		for _, f := range res.Findings {
			kind := f.Kind.String()
			if f.Kind.Severe() {
				kind = styles.Error.Render(kind)
			}
			t.AppendRow(table.Row{strconv.Itoa(f.Line), f.Class, f.Base, f.Method, kind})
		}
		if r.EffectiveMode() == output.ModeMarkdown {
			t.RenderMarkdown()
		} else {
			t.Render()
		}
		r.Println()
	}
}
