package realtime

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// Filter selects events with a jq expression. An event matches when the
// expression yields at least one value other than null or false.
type Filter struct {
	expr string
	code *gojq.Code
}

// CompileFilter parses and compiles a jq expression such as
// `.type | startswith("response.")`.
func CompileFilter(expr string) (*Filter, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, code: code}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match evaluates the filter against the event's fields. A nil filter
// matches everything.
func (f *Filter) Match(ev Event) (bool, error) {
	if f == nil {
		return true, nil
	}
	fields, err := ev.Fields()
	if err != nil {
		return false, err
	}
	iter := f.code.Run(fields)
	for {
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("filter %q: %w", f.expr, err)
		}
		if v != nil && v != false {
			return true, nil
		}
	}
}
