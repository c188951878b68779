package linkederrors

import (
	"fmt"
	"runtime"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// StackConverter converts Go errors using the stack recorded by
// github.com/pkg/errors, following the same links as the walker: key through
// Linker, and errors.Unwrap for the default key. It hands native exceptions
// and non-error causes back to the walker.
type StackConverter struct{}

func (StackConverter) Convert(err error, key string, max int) ([]models.Exception, any) {
	var exceptions []models.Exception
	for current := err; len(exceptions) < max; {
		exceptions = append(exceptions, ExceptionFromError(current))

		next := linked(current, key)
		nextErr, ok := next.(error)
		if !ok {
			return exceptions, next
		}
		switch nextErr.(type) {
		case *JavaThrowable, *AppleError:
			return exceptions, next
		}
		current = nextErr
	}
	return exceptions, nil
}

// ExceptionFromError builds an exception for err alone, without its causes.
func ExceptionFromError(err error) models.Exception {
	exception := models.Exception{
		Type:  strings.TrimPrefix(fmt.Sprintf("%T", err), "*"),
		Value: err.Error(),
	}
	if st, ok := err.(stackTracer); ok {
		exception.Stacktrace = &models.Stacktrace{Frames: framesFromStack(st.StackTrace())}
	}
	return exception
}

// CallerStacktrace records the current goroutine's stack, skipping skip
// frames above the caller of CallerStacktrace.
func CallerStacktrace(skip int) *models.Stacktrace {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	stack := make(pkgerrors.StackTrace, n)
	for i, pc := range pcs[:n] {
		stack[i] = pkgerrors.Frame(pc)
	}
	return &models.Stacktrace{Frames: framesFromStack(stack)}
}

// framesFromStack converts a pkg/errors stack, innermost first, into frames
// ordered outermost first.
func framesFromStack(stack pkgerrors.StackTrace) []models.Frame {
	frames := make([]models.Frame, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		pc := uintptr(stack[i]) - 1
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line := fn.FileLine(pc)
		module, function := splitFuncName(fn.Name())
		frames = append(frames, models.Frame{
			Module:   module,
			Function: function,
			AbsPath:  file,
			Filename: file[strings.LastIndex(file, "/")+1:],
			Lineno:   models.Int(line),
		})
	}
	return frames
}

// splitFuncName splits "github.com/org/pkg.(*T).Method" into its package path
// and function name.
func splitFuncName(name string) (string, string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return "", name
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}
