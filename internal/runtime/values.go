package runtime

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Int returns a shared variable as an int64.
func (r *Runtime) Int(name string) (int64, error) {
	val, ok := r.memory[name]
	if !ok {
		return 0, fmt.Errorf("unknown variable '%s'", name)
	}
	return toInt(val)
}

// RegisterInt returns a register of task as an int64.
func (r *Runtime) RegisterInt(task int64, name string) (int64, error) {
	val, ok := r.Register(task, name)
	if !ok {
		return 0, fmt.Errorf("task %d has no register '%s'", task, name)
	}
	return toInt(val)
}

func toInt(val cty.Value) (int64, error) {
	var n int64
	if err := gocty.FromCtyValue(val, &n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEval, err)
	}
	return n, nil
}

// Memory renders every shared variable, for reports.
func (r *Runtime) Memory() map[string]string {
	out := make(map[string]string, len(r.memory))
	for name, val := range r.memory {
		out[name] = render(val)
	}
	return out
}

func render(val cty.Value) string {
	switch {
	case val.Type().Equals(cty.Number):
		return val.AsBigFloat().Text('f', -1)
	case val.Type().Equals(cty.Bool):
		return fmt.Sprint(val.True())
	}
	return val.GoString()
}
