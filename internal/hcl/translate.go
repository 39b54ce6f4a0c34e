package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/trustgo/internal/ctxlog"
	"github.com/vk/trustgo/internal/program"
	"github.com/zclconf/go-cty/cty"
)

// translateChecker converts a checker block into settings; omitted
// attributes stay nil.
func (l *Loader) translateChecker(ctx context.Context, c *CheckerBlock) (*program.Settings, error) {
	s := &program.Settings{}

	if isExprDefined(ctx, c.MaxIterations, "max_iterations") {
		var n int
		if err := l.converter.DecodeExpression(ctx, c.MaxIterations, &n); err != nil {
			return nil, fmt.Errorf("checker.max_iterations: %w", err)
		}
		if n < 0 {
			return nil, fmt.Errorf("checker.max_iterations must not be negative, got %d", n)
		}
		s.MaxIterations = &n
	}
	if isExprDefined(ctx, c.Policy, "policy") {
		var p string
		if err := l.converter.DecodeExpression(ctx, c.Policy, &p); err != nil {
			return nil, fmt.Errorf("checker.policy: %w", err)
		}
		s.Policy = &p
	}
	if isExprDefined(ctx, c.Seed, "seed") {
		var seed int64
		if err := l.converter.DecodeExpression(ctx, c.Seed, &seed); err != nil {
			return nil, fmt.Errorf("checker.seed: %w", err)
		}
		s.Seed = &seed
	}
	if isExprDefined(ctx, c.StopOnBug, "stop_on_bug") {
		var stop bool
		if err := l.converter.DecodeExpression(ctx, c.StopOnBug, &stop); err != nil {
			return nil, fmt.Errorf("checker.stop_on_bug: %w", err)
		}
		s.StopOnBug = &stop
	}
	return s, nil
}

// mergeProgram adds the vars and threads of one program block to prog.
// Blocks from several files merge when they share a name.
func (l *Loader) mergeProgram(ctx context.Context, prog *program.Program, p *ProgramBlock) error {
	logger := ctxlog.FromContext(ctx)
	if prog.Name == "" {
		prog.Name = p.Name
	} else if prog.Name != p.Name {
		return fmt.Errorf("program '%s' conflicts with program '%s'", p.Name, prog.Name)
	}

	for _, v := range p.Vars {
		if _, dup := prog.Vars[v.Name]; dup {
			return fmt.Errorf("program '%s': duplicate var '%s'", p.Name, v.Name)
		}
		initial := cty.NumberIntVal(0)
		if isExprDefined(ctx, v.Initial, "initial") {
			val, err := l.converter.StaticValue(v.Initial)
			if err != nil {
				return fmt.Errorf("var '%s': %w", v.Name, err)
			}
			if !val.Type().Equals(cty.Number) && !val.Type().Equals(cty.Bool) {
				return fmt.Errorf("var '%s': initial value must be a number or bool, got %s", v.Name, val.Type().FriendlyName())
			}
			initial = val
		}
		prog.Vars[v.Name] = &program.Var{Name: v.Name, Initial: initial}
	}

	for _, t := range p.Threads {
		if _, dup := prog.Threads[t.Name]; dup {
			return fmt.Errorf("program '%s': duplicate thread '%s'", p.Name, t.Name)
		}
		th := &program.Thread{Name: t.Name}
		for _, op := range t.Ops {
			th.Ops = append(th.Ops, l.translateOp(ctx, op))
		}
		prog.Threads[t.Name] = th
		logger.Debug("Translated thread.", "thread", t.Name, "ops", len(th.Ops))
	}
	return nil
}

func (l *Loader) translateOp(ctx context.Context, op *OpBlock) *program.Op {
	return &program.Op{
		Kind:      program.OpKind(op.Kind),
		Var:       op.Var,
		Into:      op.Into,
		Lock:      op.Lock,
		Thread:    op.Thread,
		Value:     definedOrNil(ctx, op.Value, "value"),
		Condition: definedOrNil(ctx, op.Condition, "condition"),
		Message:   op.Message,
	}
}

func definedOrNil(ctx context.Context, expr hcl.Expression, name string) hcl.Expression {
	if !isExprDefined(ctx, expr, name) {
		return nil
	}
	return expr
}
