package program

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Validate checks that the program is complete: a main thread exists, every
// operation has the operands its kind needs, spawn and join name known
// threads, and expressions only read registers their thread loads.
func (p *Program) Validate() error {
	var errs []string

	if _, ok := p.Threads[MainThread]; !ok {
		errs = append(errs, fmt.Sprintf("program '%s': no '%s' thread", p.Name, MainThread))
	}

	names := make([]string, 0, len(p.Threads))
	for name := range p.Threads {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		th := p.Threads[name]
		registers := th.Registers()
		for i, op := range th.Ops {
			for _, msg := range p.validateOp(op, registers) {
				errs = append(errs, fmt.Sprintf("thread '%s', op %d (%s): %s", name, i, op.Kind, msg))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("program validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func (p *Program) validateOp(op *Op, registers []string) []string {
	var errs []string
	need := func(ok bool, what string) {
		if !ok {
			errs = append(errs, "missing "+what)
		}
	}
	variable := func() {
		need(op.Var != "", "'var'")
		if _, ok := p.Vars[op.Var]; op.Var != "" && !ok {
			errs = append(errs, fmt.Sprintf("undeclared variable '%s'", op.Var))
		}
	}
	thread := func() {
		need(op.Thread != "", "'thread'")
		if _, ok := p.Threads[op.Thread]; op.Thread != "" && !ok {
			errs = append(errs, fmt.Sprintf("unknown thread '%s'", op.Thread))
		}
	}

	switch op.Kind {
	case OpRead:
		variable()
		need(op.Into != "", "'into'")
	case OpWrite:
		variable()
		need(op.Value != nil, "'value'")
	case OpFetchAdd:
		variable()
		need(op.Value != nil, "'value'")
	case OpLock, OpUnlock:
		need(op.Lock != "", "'lock'")
	case OpSpawn:
		thread()
		if op.Thread == MainThread {
			errs = append(errs, "the main thread cannot be spawned")
		}
	case OpJoin:
		thread()
	case OpAssert, OpAssume:
		need(op.Condition != nil, "'condition'")
	default:
		errs = append(errs, fmt.Sprintf("unknown operation kind '%s'", op.Kind))
	}

	for _, expr := range []hcl.Expression{op.Value, op.Condition} {
		if expr == nil {
			continue
		}
		for _, traversal := range expr.Variables() {
			if root := traversal.RootName(); !slices.Contains(registers, root) {
				errs = append(errs, fmt.Sprintf("expression reads unknown register '%s'", root))
			}
		}
	}
	return errs
}

// Registers returns the sorted register names the thread loads into.
func (t *Thread) Registers() []string {
	var out []string
	for _, op := range t.Ops {
		if op.Into != "" && !slices.Contains(out, op.Into) {
			out = append(out, op.Into)
		}
	}
	sort.Strings(out)
	return out
}
