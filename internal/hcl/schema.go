package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a program file may contain.
type fileRoot struct {
	Checkers []*CheckerBlock `hcl:"checker,block"`
	Programs []*ProgramBlock `hcl:"program,block"`
	Remain   hcl.Body        `hcl:",remain"`
}

// CheckerBlock holds run settings. Attributes stay expressions so omitted
// ones can be told apart from zero values.
type CheckerBlock struct {
	MaxIterations hcl.Expression `hcl:"max_iterations,optional"`
	Policy        hcl.Expression `hcl:"policy,optional"`
	Seed          hcl.Expression `hcl:"seed,optional"`
	StopOnBug     hcl.Expression `hcl:"stop_on_bug,optional"`
}

// ProgramBlock is a `program` block.
type ProgramBlock struct {
	Name    string         `hcl:"name,label"`
	Vars    []*VarBlock    `hcl:"var,block"`
	Threads []*ThreadBlock `hcl:"thread,block"`
}

// VarBlock declares a shared variable.
type VarBlock struct {
	Name    string         `hcl:"name,label"`
	Initial hcl.Expression `hcl:"initial,optional"`
}

// ThreadBlock is a `thread` block with its ordered operations.
type ThreadBlock struct {
	Name string     `hcl:"name,label"`
	Ops  []*OpBlock `hcl:"op,block"`
}

// OpBlock is one `op` block, labelled with its kind.
type OpBlock struct {
	Kind      string         `hcl:"kind,label"`
	Var       string         `hcl:"var,optional"`
	Into      string         `hcl:"into,optional"`
	Lock      string         `hcl:"lock,optional"`
	Thread    string         `hcl:"thread,optional"`
	Value     hcl.Expression `hcl:"value,optional"`
	Condition hcl.Expression `hcl:"condition,optional"`
	Message   string         `hcl:"message,optional"`
}
