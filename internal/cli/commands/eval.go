package commands

import (
	"fmt"

	"github.com/leapstack-labs/starbind/internal/host"
	"github.com/spf13/cobra"
)

// evalOutput is one evaluated expression in structured output.
type evalOutput struct {
	Expr  string `json:"expr" yaml:"expr"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <expr>...",
		Short: "Evaluate Starlark expressions with the bindings loaded",
		Long: `Evaluate each expression in its own thread and print the result.

Expressions run concurrently and share the predeclared classes and builtins.`,
		Example: `  starbind eval 'ListUser().sumList([1, 2, 3])' 'ListUser.createComplexList(1, 2j)'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			rt, err := cmdCtx.Engine.NewRuntime()
			if err != nil {
				return err
			}

			tasks := make([]host.EvalTask, len(args))
			for i, expr := range args {
				tasks[i] = host.EvalTask{Name: fmt.Sprintf("<arg %d>", i+1), Expr: expr}
			}
			results := rt.EvalAll(cmd.Context(), tasks)

			outputs := make([]evalOutput, len(results))
			failed := 0
			for i, res := range results {
				outputs[i] = evalOutput{Expr: args[i]}
				if res.Error != nil {
					outputs[i].Error = res.Error.Error()
					failed++
					continue
				}
				outputs[i].Value = res.Value.String()
				outputs[i].Type = res.Value.Type()
			}

			r := cmdCtx.Renderer
			if ok, err := r.Structured(outputs); ok {
				if err != nil {
					return err
				}
			} else {
				for _, o := range outputs {
					if o.Error != "" {
						r.Error(o.Expr + ": " + o.Error)
						continue
					}
					r.Printf("%s %s\n", o.Value, r.Muted("("+o.Type+")"))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d expression(s) failed", failed)
			}
			return nil
		},
	}
}
