// Package linkederrors appends the chain of errors linked to a captured error
// to the event, resolving native exceptions along the way.
package linkederrors

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

const (
	DefaultKey   = "cause"
	DefaultLimit = 5
)

// Linker is implemented by values that expose linked errors by key.
type Linker interface {
	Linked(key string) any
}

// JavaStackElement is one frame of a Java throwable, innermost first.
type JavaStackElement struct {
	ClassName  string `mapstructure:"className"`
	FileName   string `mapstructure:"fileName"`
	LineNumber int    `mapstructure:"lineNumber"`
	MethodName string `mapstructure:"methodName"`
}

// JavaThrowable is a Java exception surfaced from the Android layer.
type JavaThrowable struct {
	Name          string             `mapstructure:"name"`
	Message       string             `mapstructure:"message"`
	StackElements []JavaStackElement `mapstructure:"stackElements"`
	Links         map[string]any     `mapstructure:",remain"`
}

func (t *JavaThrowable) Error() string {
	return fmt.Sprintf("%s: %s", t.Name, t.Message)
}

func (t *JavaThrowable) Linked(key string) any {
	return t.Links[key]
}

// AppleError is an Objective-C exception carrying raw return addresses.
type AppleError struct {
	Name                 string         `mapstructure:"name"`
	Message              string         `mapstructure:"message"`
	StackReturnAddresses []uint64       `mapstructure:"stackReturnAddresses"`
	Links                map[string]any `mapstructure:",remain"`
}

func (e *AppleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *AppleError) Linked(key string) any {
	return e.Links[key]
}

// Native is the slice of the native bridge the walker needs. Both calls
// degrade to zero values instead of failing.
type Native interface {
	FetchNativePackageName(ctx context.Context) string
	FetchNativeStackFramesBy(ctx context.Context, addrs []uint64) *models.NativeStackFrames
}

// ErrorConverter turns a Go error, and as much of its own cause chain under
// key as it can resolve, into at most max exceptions. next is the first link
// it left unresolved, or nil.
type ErrorConverter interface {
	Convert(err error, key string, max int) (exceptions []models.Exception, next any)
}

// Chain is the result of a walk.
type Chain struct {
	Exceptions  []models.Exception
	DebugImages []models.DebugImage
}
