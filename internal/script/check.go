package script

import (
	"fmt"

	"github.com/leapstack-labs/starbind/internal/binding"
)

// FindingKind classifies one method of a script subclass.
type FindingKind int

const (
	// FindingOverride replaces a virtual native method; native callers see it.
	FindingOverride FindingKind = iota
	// FindingShadow hides a non-virtual native method; only scripts see it.
	FindingShadow
	// FindingNew adds a method the native class does not have.
	FindingNew
	// FindingInit is the script constructor.
	FindingInit
	// FindingUnknownBase means the base class could not be resolved statically.
	FindingUnknownBase
)

func (k FindingKind) String() string {
	switch k {
	case FindingOverride:
		return "override"
	case FindingShadow:
		return "shadow"
	case FindingNew:
		return "new"
	case FindingInit:
		return "init"
	case FindingUnknownBase:
		return "unknown_base"
	default:
		return fmt.Sprintf("FindingKind(%d)", int(k))
	}
}

// MarshalText renders the kind by name in JSON and YAML reports.
func (k FindingKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Severe reports whether the finding should fail a check.
func (k FindingKind) Severe() bool {
	return k == FindingUnknownBase
}

// Finding is one entry of an override report.
type Finding struct {
	File   string      `json:"file" yaml:"file"`
	Line   int         `json:"line" yaml:"line"`
	Class  string      `json:"class" yaml:"class"`
	Base   string      `json:"base" yaml:"base"`
	Method string      `json:"method,omitempty" yaml:"method,omitempty"`
	Kind   FindingKind `json:"kind" yaml:"kind"`
}

func (f Finding) String() string {
	if f.Method == "" {
		return fmt.Sprintf("%s:%d: %s: %s (base %s)", f.File, f.Line, f.Class, f.Kind, f.Base)
	}
	return fmt.Sprintf("%s:%d: %s.%s: %s", f.File, f.Line, f.Class, f.Method, f.Kind)
}

// Check reports, for every subclass defined in ps, how each of its methods relates
// to the native class it derives from. Bases may be registered classes or subclasses
// defined earlier in the same file.
func Check(ps *ParsedScript, reg *binding.Registry) []Finding {
	natives := make(map[string]*binding.Class)
	var findings []Finding

	for _, sc := range ps.Subclasses {
		base, ok := natives[sc.Base]
		if !ok {
			base, ok = reg.Lookup(sc.Base)
		}
		if !ok {
			findings = append(findings, Finding{
				File: ps.FilePath, Line: sc.Line, Class: sc.Name, Base: sc.Base, Kind: FindingUnknownBase,
			})
			continue
		}
		natives[sc.Var] = base

		for _, name := range sc.Methods {
			f := Finding{File: ps.FilePath, Line: sc.Line, Class: sc.Name, Base: base.Name, Method: name}
			switch m, found := base.Method(name); {
			case name == "__init__":
				f.Kind = FindingInit
			case !found:
				f.Kind = FindingNew
			case m.Virtual():
				f.Kind = FindingOverride
			default:
				f.Kind = FindingShadow
			}
			findings = append(findings, f)
		}
	}
	return findings
}
