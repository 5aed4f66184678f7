package compiler

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Severity grades a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	}
	return "info"
}

// QuickFix suggests replacing the text Old at Pos with New. Editors apply
// it; the compiler only produces it.
type QuickFix struct {
	Title string
	Pos   Position
	Old   string
	New   string
}

// Diagnostic is a compiler message tied to a source position.
type Diagnostic struct {
	Severity Severity
	Pos      Position
	Message  string
	Fix      *QuickFix
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// Diagnostics is the list produced by one generation pass.
type Diagnostics []Diagnostic

// Errors returns only the error-severity entries.
func (ds Diagnostics) Errors() Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether any entry is an error.
func (ds Diagnostics) HasErrors() bool {
	return len(ds.Errors()) > 0
}

// Err folds the error entries into a single error, or returns nil.
func (ds Diagnostics) Err() error {
	var result *multierror.Error
	for _, d := range ds.Errors() {
		result = multierror.Append(result, d)
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		msg := fmt.Sprintf("%d compile error(s):", len(errs))
		for _, e := range errs {
			msg += "\n\t" + e.Error()
		}
		return msg
	}
	return result
}

// AsDiagnostic extracts a Diagnostic from an error returned by Err.
func AsDiagnostic(err error) (Diagnostic, bool) {
	var d Diagnostic
	ok := errors.As(err, &d)
	return d, ok
}
