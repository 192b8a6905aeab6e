// Package jsobj decodes JSON-like JavaScript literals (unquoted keys, single
// quotes) that pages embed in inline scripts.
package jsobj

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robertkrimen/otto"
)

// DefaultTimeout bounds evaluation of a single expression.
const DefaultTimeout = 2 * time.Second

var (
	// ErrEmpty is returned when the expression is blank.
	ErrEmpty = errors.New("jsobj: empty expression")
	// ErrTimeout is returned when evaluation is halted at the deadline.
	ErrTimeout = errors.New("jsobj: evaluation timed out")
)

type halt struct{}

// Decode parses expr as strict JSON first and falls back to evaluating it as
// a JavaScript expression in an isolated otto VM, halted after
// DefaultTimeout. Objects decode to map[string]any and arrays to []any.
func Decode(expr string) (any, error) {
	return decode(expr, DefaultTimeout)
}

func decode(expr string, timeout time.Duration) (any, error) {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimSuffix(expr, ";")
	if expr == "" {
		return nil, ErrEmpty
	}
	var out any
	if err := json.Unmarshal([]byte(expr), &out); err == nil {
		return out, nil
	}
	value, err := run("("+expr+")", timeout)
	if err != nil {
		return nil, err
	}
	exported, err := value.Export()
	if err != nil {
		return nil, fmt.Errorf("jsobj: export: %w", err)
	}
	return normalize(exported), nil
}

// run evaluates src and interrupts the VM once timeout elapses.
func run(src string, timeout time.Duration) (value otto.Value, err error) {
	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt <- func() { panic(halt{}) }
	})
	defer timer.Stop()
	defer func() {
		if caught := recover(); caught != nil {
			if _, ok := caught.(halt); ok {
				err = ErrTimeout
				return
			}
			panic(caught)
		}
	}()
	value, err = vm.Run(src)
	if err != nil {
		return otto.Value{}, fmt.Errorf("jsobj: evaluate: %w", err)
	}
	return value, nil
}

// DecodeObject decodes expr and requires an object.
func DecodeObject(expr string) (map[string]any, error) {
	v, err := Decode(expr)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("jsobj: expected object, got %T", v)
	}
	return m, nil
}

// normalize converts otto's typed exports into the shapes encoding/json
// produces so callers handle a single representation.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case []int64:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = float64(item)
		}
		return out
	case []bool:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case int:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

// Lookup walks a "|"-separated key path. String values met mid-path are
// decoded as JSON before descending.
func Lookup(data any, path string) any {
	if path == "" || data == nil {
		return nil
	}
	value := data
	for _, key := range strings.Split(path, "|") {
		if s, ok := value.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil
			}
			value = decoded
		}
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value, ok = m[key]
		if !ok || value == nil {
			return nil
		}
	}
	return value
}
