package core

// Errors in this file are user errors: something is wrong with a
// procedure, not with this package.

import (
	"errors"
	"fmt"
	"strings"
)

// Severity of a Diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// Diagnostic locates one problem found while loading or compiling a
// procedure.
//
// Path names the offending construct, like "body[2].loop.body[0]".
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Proc     string   `json:"proc,omitempty" yaml:",omitempty"`
	Path     string   `json:"path,omitempty" yaml:",omitempty"`
	Message  string   `json:"message"`
}

func (d *Diagnostic) Error() string {
	var b strings.Builder
	b.WriteString(d.Severity.String())
	if d.Proc != "" || d.Path != "" {
		b.WriteString("[")
		b.WriteString(d.Proc)
		if d.Path != "" {
			if d.Proc != "" {
				b.WriteString(":")
			}
			b.WriteString(d.Path)
		}
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Diagnostics collects problems instead of stopping at the first one.
//
// A *Diagnostics with at least one error is itself an error.
type Diagnostics struct {
	Items []*Diagnostic `json:"diagnostics"`
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		Items: make([]*Diagnostic, 0, 4),
	}
}

// Errorf adds an error.
func (ds *Diagnostics) Errorf(proc, path, format string, args ...interface{}) {
	ds.Items = append(ds.Items, &Diagnostic{
		Severity: Error,
		Proc:     proc,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Warningf adds a warning.
func (ds *Diagnostics) Warningf(proc, path, format string, args ...interface{}) {
	ds.Items = append(ds.Items, &Diagnostic{
		Severity: Warning,
		Proc:     proc,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Merge appends the items of other (if any).
func (ds *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	ds.Items = append(ds.Items, other.Items...)
}

func (ds *Diagnostics) HasErrors() bool {
	for _, d := range ds.Items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Errors returns only the error-level items.
func (ds *Diagnostics) Errors() []*Diagnostic {
	acc := make([]*Diagnostic, 0, len(ds.Items))
	for _, d := range ds.Items {
		if d.Severity == Error {
			acc = append(acc, d)
		}
	}
	return acc
}

// Err returns ds if it has errors and nil otherwise.
func (ds *Diagnostics) Err() error {
	if ds == nil || !ds.HasErrors() {
		return nil
	}
	return ds
}

// Error renders one line per item.
func (ds *Diagnostics) Error() string {
	lines := make([]string, 0, len(ds.Items))
	for _, d := range ds.Items {
		lines = append(lines, d.Error())
	}
	return strings.Join(lines, "\n")
}

// AsDiagnostics extracts a *Diagnostics from err.
func AsDiagnostics(err error) (*Diagnostics, bool) {
	var ds *Diagnostics
	if errors.As(err, &ds) {
		return ds, true
	}
	return nil, false
}

// UnknownProcedure occurs when a sub-mission names a procedure that
// isn't in the Unit.
type UnknownProcedure struct {
	Name string
}

func (e *UnknownProcedure) Error() string {
	return `procedure "` + e.Name + `" not found`
}

// UnknownState occurs when a state index or name doesn't exist in a
// Program.
type UnknownState struct {
	Proc  string
	State string
}

func (e *UnknownState) Error() string {
	return `state "` + e.State + `" not found in procedure "` + e.Proc + `"`
}

// InterpreterNotFound occurs when an opaque expression names an
// interpreter that isn't available.
type InterpreterNotFound struct {
	Name string
}

func (e *InterpreterNotFound) Error() string {
	return `interpreter "` + e.Name + `" not found`
}

// UncompiledExpr occurs when an opaque expression is executed before
// it has been compiled.
var UncompiledExpr = errors.New("opaque expression not compiled")
