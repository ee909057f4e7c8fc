package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/starbind/internal/binding"
	"github.com/leapstack-labs/starbind/internal/cli/output"
	"github.com/spf13/cobra"
)

// MethodInfo describes one bound method in inspect output.
type MethodInfo struct {
	Name       string   `json:"name" yaml:"name"`
	Virtual    bool     `json:"virtual" yaml:"virtual"`
	Static     bool     `json:"static" yaml:"static"`
	Signatures []string `json:"signatures" yaml:"signatures"`
}

// ClassInfo describes one bound class in inspect output.
type ClassInfo struct {
	Name    string       `json:"name" yaml:"name"`
	Base    string       `json:"base,omitempty" yaml:"base,omitempty"`
	Doc     string       `json:"doc,omitempty" yaml:"doc,omitempty"`
	Methods []MethodInfo `json:"methods" yaml:"methods"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [class...]",
		Short: "Show the bound classes and their methods",
		Long: `List the native classes exposed to Starlark with every method overload.

Virtual methods may be overridden by script subclasses; native code calling them
dispatches to the override.`,
		Example: `  # All classes
  starbind inspect

  # One class as YAML
  starbind inspect ListUser -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			classes, err := collectClasses(cmdCtx.Engine.Registry(), args)
			if err != nil {
				return err
			}
			if ok, err := cmdCtx.Renderer.Structured(classes); ok {
				return err
			}
			renderClasses(cmdCtx.Renderer, classes)
			return nil
		},
	}
}

func collectClasses(reg *binding.Registry, names []string) ([]ClassInfo, error) {
	var classes []*binding.Class
	if len(names) == 0 {
		classes = reg.Classes()
	} else {
		for _, name := range names {
			c, ok := reg.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("unknown class %q", name)
			}
			classes = append(classes, c)
		}
	}

	infos := make([]ClassInfo, 0, len(classes))
	for _, c := range classes {
		info := ClassInfo{Name: c.Name, Doc: c.Doc}
		if c.Base != nil {
			info.Base = c.Base.Name
		}
		for _, m := range c.Methods() {
			info.Methods = append(info.Methods, MethodInfo{
				Name:       m.Name,
				Virtual:    m.Virtual(),
				Static:     m.Static(),
				Signatures: m.Signatures(),
			})
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func renderClasses(r *output.Renderer, classes []ClassInfo) {
	for i, c := range classes {
		if i > 0 {
			r.Println()
		}
		title := c.Name
		if c.Base != "" {
			title += " (" + c.Base + ")"
		}
		r.Header(title)
		if c.Doc != "" {
			r.Println(r.Muted(c.Doc))
			r.Println()
		}

		t := table.NewWriter()
		t.SetOutputMirror(r.Writer())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Method", "Kind", "Signature"})
		for _, m := range c.Methods {
			var kind []string
			if m.Static {
				kind = append(kind, "static")
			}
			if m.Virtual {
				kind = append(kind, "virtual")
			}
			for j, sig := range m.Signatures {
				name := m.Name
				if j > 0 {
					name = ""
				}
				t.AppendRow(table.Row{name, strings.Join(kind, ", "), sig})
			}
		}

		if r.EffectiveMode() == output.ModeMarkdown {
			t.RenderMarkdown()
		} else {
			t.Render()
		}
	}
}
