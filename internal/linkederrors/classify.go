package linkederrors

import (
	"errors"

	"github.com/go-viper/mapstructure/v2"
)

// node is one classified link. Exactly one shape matches per value.
type node interface {
	isNode()
}

type javaNode struct {
	raw       any
	throwable *JavaThrowable
}

type appleNode struct {
	raw any
	err *AppleError
}

type runtimeNode struct {
	err error
}

type plainNode struct {
	raw map[string]any
}

func (javaNode) isNode()    {}
func (appleNode) isNode()   {}
func (runtimeNode) isNode() {}
func (plainNode) isNode()   {}

// classify probes v once. A nil result ends the walk.
func classify(v any) node {
	switch t := v.(type) {
	case nil:
		return nil
	case *JavaThrowable:
		if t == nil {
			return nil
		}
		return javaNode{raw: t, throwable: t}
	case *AppleError:
		if t == nil {
			return nil
		}
		return appleNode{raw: t, err: t}
	case map[string]any:
		return classifyMap(t)
	case error:
		return runtimeNode{err: t}
	}
	return nil
}

func classifyMap(m map[string]any) node {
	if _, ok := m["stackElements"]; ok {
		var throwable JavaThrowable
		if err := mapstructure.Decode(m, &throwable); err == nil {
			return javaNode{raw: m, throwable: &throwable}
		}
	}
	if _, ok := m["stackReturnAddresses"]; ok {
		var appleErr AppleError
		if err := mapstructure.Decode(m, &appleErr); err == nil {
			return appleNode{raw: m, err: &appleErr}
		}
	}
	return plainNode{raw: m}
}

// linked returns the value v links to under key.
func linked(v any, key string) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return t[key]
	case Linker:
		return t.Linked(key)
	case error:
		if key == DefaultKey {
			if next := errors.Unwrap(t); next != nil {
				return next
			}
		}
	}
	return nil
}
