package promotion

import (
	"context"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"mercatus/internal/core/currency"
	"mercatus/internal/core/types"
	"mercatus/pkg/logger"
)

// Converter is the slice of the conversion service the engine needs to
// express fixed home-currency prices in the preview currency.
type Converter interface {
	ConvertAmount(ctx context.Context, amount decimal.Decimal, from, to currency.Code) (decimal.Decimal, error)
}

// Engine evaluates CEL eligibility expressions against preview requests.
// Programs are compiled once per rule and cached; a rule that fails to
// compile is skipped and logged, never fatal to a preview.
type Engine struct {
	repo      Repository
	converter Converter
	env       *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program // rule id -> compiled program
}

// NewEngine creates a promotion engine. Returns an error only if the CEL
// environment itself cannot be constructed.
func NewEngine(repo Repository, converter Converter) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("qty", cel.IntType),
		cel.Variable("account_type", cel.StringType),
		cel.Variable("currency", cel.StringType),
	)
	if err != nil {
		return nil, err
	}
	return &Engine{
		repo:      repo,
		converter: converter,
		env:       env,
		programs:  make(map[string]cel.Program),
	}, nil
}

// Preview implements Previewer: first eligible rule by priority wins.
func (e *Engine) Preview(ctx context.Context, req PreviewRequest) (*RuleResult, error) {
	rules, err := e.repo.ActiveForVariant(ctx, req.VariantID)
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		eligible, err := e.eligible(ctx, rule, req)
		if err != nil {
			logger.Warn(ctx, "promotion rule evaluation failed",
				"rule", rule.Code, "error", err)
			continue
		}
		if !eligible {
			continue
		}
		return e.apply(ctx, rule, req)
	}
	return nil, nil
}

// eligible evaluates the rule's CEL expression.
func (e *Engine) eligible(ctx context.Context, rule *Rule, req PreviewRequest) (bool, error) {
	prg, err := e.program(rule)
	if err != nil {
		return false, err
	}

	out, _, err := prg.ContextEval(ctx, map[string]any{
		"qty":          int64(req.Qty),
		"account_type": req.AccountType,
		"currency":     string(req.Currency),
	})
	if err != nil {
		return false, err
	}

	result, ok := out.Value().(bool)
	return ok && result, nil
}

// apply computes the repriced line for a matched rule.
func (e *Engine) apply(ctx context.Context, rule *Rule, req PreviewRequest) (*RuleResult, error) {
	final := req.UnitBase

	switch rule.Action {
	case ActionPercentOff:
		factor := decimal.NewFromInt(100).Sub(rule.Value).Div(decimal.NewFromInt(100))
		final = types.RoundMoney(req.UnitBase.Mul(factor), 2)
	case ActionFixedPrice:
		// Rule values are stored in the home currency.
		converted, err := e.converter.ConvertAmount(ctx, rule.Value, currency.Home, req.Currency)
		if err != nil {
			return nil, err
		}
		final = converted
	}

	return &RuleResult{
		RuleCode:  rule.Code,
		UnitBase:  req.UnitBase,
		UnitFinal: final,
	}, nil
}

// program returns the cached compiled program for a rule, compiling on
// first use.
func (e *Engine) program(rule *Rule) (cel.Program, error) {
	key := rule.ID.String()

	e.mu.RLock()
	prg, ok := e.programs[key]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[key] = prg
	e.mu.Unlock()
	return prg, nil
}
