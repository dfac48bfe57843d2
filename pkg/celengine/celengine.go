package celengine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/fx"
)

var Module = fx.Module("celengine",
	fx.Provide(New),
)

// Variables available to eligibility expressions.
const (
	VarScore    = "score"
	VarViews    = "views"
	VarLikes    = "likes"
	VarComments = "comments"
	VarShares   = "shares"
)

// Engagement is the activation for one submission.
type Engagement struct {
	Score    float64
	Views    int64
	Likes    int64
	Comments int64
	Shares   int64
}

func (e Engagement) activation() map[string]any {
	return map[string]any{
		VarScore:    e.Score,
		VarViews:    e.Views,
		VarLikes:    e.Likes,
		VarComments: e.Comments,
		VarShares:   e.Shares,
	}
}

// Engine compiles eligibility expressions once and caches the programs by source.
type Engine struct {
	env      *cel.Env
	programs sync.Map
}

func New() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarScore, cel.DoubleType),
		cel.Variable(VarViews, cel.IntType),
		cel.Variable(VarLikes, cel.IntType),
		cel.Variable(VarComments, cel.IntType),
		cel.Variable(VarShares, cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	return &Engine{env: env}, nil
}

// Validate reports whether expr compiles to a boolean expression.
func (e *Engine) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

// Eligible evaluates expr against the engagement. An empty expression admits everything.
func (e *Engine) Eligible(expr string, in Engagement) (bool, error) {
	if expr == "" {
		return true, nil
	}

	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(in.activation())
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}
	return b, nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	if v, ok := e.programs.Load(expr); ok {
		return v.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}

	e.programs.Store(expr, prg)
	return prg, nil
}
