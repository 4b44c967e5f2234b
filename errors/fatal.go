package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// Violation is the panic value raised for broken contracts: editing a map
// while its users change, unlocking an unlocked mutex, dropping a count
// below zero. It signals a bug in the caller and is not meant to be
// recovered outside of tests.
type Violation struct {
	Phase  Phase
	Detail string
	Stack  string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("[%s] contract violation: %s", v.Phase, v.Detail)
}

// Fatalf panics with a *Violation carrying the caller's stack.
func Fatalf(phase Phase, format string, args ...any) {
	panic(&Violation{
		Phase:  phase,
		Detail: fmt.Sprintf(format, args...),
		Stack:  callers(),
	})
}

func callers() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}
