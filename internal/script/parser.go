package script

// This file contains static parsing functions that extract metadata without execution.

import (
	"path/filepath"
	"strings"

	"go.starlark.net/syntax"
)

// ParsedFunction represents a top-level function in a .star file.
type ParsedFunction struct {
	Name      string   `json:"name" yaml:"name"`
	Args      []string `json:"args" yaml:"args"` // Argument names (with defaults like "x=None")
	Docstring string   `json:"docstring,omitempty" yaml:"docstring,omitempty"`
	Line      int      `json:"line" yaml:"line"`
}

// ParsedSubclass is a subclass(...) call assigned to a global.
type ParsedSubclass struct {
	Var     string   `json:"var" yaml:"var"`   // Global the class is assigned to
	Name    string   `json:"name" yaml:"name"` // Class name passed to subclass
	Base    string   `json:"base" yaml:"base"` // Expression naming the base class
	Methods []string `json:"methods" yaml:"methods"`
	Line    int      `json:"line" yaml:"line"`
}

// ParsedScript represents a parsed .star file.
type ParsedScript struct {
	Name       string            `json:"name" yaml:"name"`
	FilePath   string            `json:"file_path" yaml:"file_path"`
	Loads      []string          `json:"loads,omitempty" yaml:"loads,omitempty"`
	Functions  []*ParsedFunction `json:"functions" yaml:"functions"`
	Subclasses []*ParsedSubclass `json:"subclasses" yaml:"subclasses"`
}

// ParseFile statically parses a .star file and extracts its functions, loads and
// subclass definitions. This does NOT execute the file - it only analyzes the AST.
func ParseFile(filename string, content []byte) (*ParsedScript, error) {
	f, err := syntax.Parse(filename, content, 0)
	if err != nil {
		return nil, &ParseError{
			File:    filename,
			Message: err.Error(),
		}
	}

	ps := &ParsedScript{
		Name:     strings.TrimSuffix(filepath.Base(filename), ".star"),
		FilePath: filename,
	}

	for _, stmt := range f.Stmts {
		switch s := stmt.(type) {
		case *syntax.LoadStmt:
			ps.Loads = append(ps.Loads, s.ModuleName())
		case *syntax.DefStmt:
			ps.Functions = append(ps.Functions, &ParsedFunction{
				Name:      s.Name.Name,
				Line:      int(s.Name.NamePos.Line),
				Args:      extractArgs(s.Params),
				Docstring: extractDocstring(s.Body),
			})
		case *syntax.AssignStmt:
			if sc := parseSubclass(s); sc != nil {
				ps.Subclasses = append(ps.Subclasses, sc)
			}
		}
	}

	return ps, nil
}

// parseSubclass recognises `Var = subclass(Base, "Name", ...)`.
func parseSubclass(s *syntax.AssignStmt) *ParsedSubclass {
	if s.Op != syntax.EQ {
		return nil
	}
	target, ok := s.LHS.(*syntax.Ident)
	if !ok {
		return nil
	}
	call, ok := s.RHS.(*syntax.CallExpr)
	if !ok {
		return nil
	}
	if fn, ok := call.Fn.(*syntax.Ident); !ok || fn.Name != "subclass" {
		return nil
	}

	sc := &ParsedSubclass{
		Var:  target.Name,
		Line: int(target.NamePos.Line),
	}
	positional := 0
	for _, arg := range call.Args {
		if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
			if ident, ok := kw.X.(*syntax.Ident); ok {
				sc.Methods = append(sc.Methods, ident.Name)
			}
			continue
		}
		switch positional {
		case 0:
			sc.Base = exprToString(arg)
		case 1:
			if lit, ok := arg.(*syntax.Literal); ok && lit.Token == syntax.STRING {
				sc.Name, _ = lit.Value.(string)
			}
		case 2:
			if dict, ok := arg.(*syntax.DictExpr); ok {
				for _, entry := range dict.List {
					e, ok := entry.(*syntax.DictEntry)
					if !ok {
						continue
					}
					if lit, ok := e.Key.(*syntax.Literal); ok && lit.Token == syntax.STRING {
						if name, ok := lit.Value.(string); ok {
							sc.Methods = append(sc.Methods, name)
						}
					}
				}
			}
		}
		positional++
	}
	if sc.Name == "" {
		sc.Name = sc.Var
	}
	return sc
}

// extractArgs converts syntax parameters to string representations.
func extractArgs(params []syntax.Expr) []string {
	var args []string
	for _, param := range params {
		switch p := param.(type) {
		case *syntax.Ident:
			args = append(args, p.Name)
		case *syntax.BinaryExpr:
			if p.Op == syntax.EQ {
				if ident, ok := p.X.(*syntax.Ident); ok {
					args = append(args, ident.Name+"="+exprToString(p.Y))
				}
			}
		case *syntax.UnaryExpr:
			// *args or **kwargs
			if ident, ok := p.X.(*syntax.Ident); ok {
				prefix := "*"
				if p.Op == syntax.STARSTAR {
					prefix = "**"
				}
				args = append(args, prefix+ident.Name)
			}
		}
	}
	return args
}

// extractDocstring gets the docstring from function body if present.
func extractDocstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	exprStmt, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := exprStmt.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, ok := lit.Value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// exprToString converts a syntax expression to a short string representation.
func exprToString(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.DotExpr:
		return exprToString(e.X) + "." + e.Name.Name
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	case *syntax.TupleExpr:
		return "()"
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + exprToString(e.X)
		}
		return exprToString(e.X)
	default:
		return "..."
	}
}

// ParseError represents an error during static parsing.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	return "parse " + filepath.Base(e.File) + ": " + e.Message
}

// Signature returns a human-readable signature for a function.
func (f *ParsedFunction) Signature() string {
	return f.Name + "(" + strings.Join(f.Args, ", ") + ")"
}
