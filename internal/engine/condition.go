package engine

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// condition is a compiled CEL gate attached to a rule. The zero value
// matches nothing; an empty source expression matches everything.
type condition struct {
	prog     cel.Program
	matchAll bool
}

func (e *Engine) compileCondition(expr string) condition {
	if strings.TrimSpace(expr) == "" {
		return condition{matchAll: true}
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return condition{}
	}
	if ast.OutputType() != cel.BoolType {
		return condition{}
	}
	prog, err := e.env.Program(ast)
	if err != nil {
		return condition{}
	}
	return condition{prog: prog}
}

// eval runs the condition against a row activation. Any evaluation error,
// including a reference to a column the row does not carry, counts as
// no match.
func (c condition) eval(activation map[string]any) bool {
	if c.matchAll {
		return true
	}
	if c.prog == nil {
		return false
	}
	out, _, err := c.prog.Eval(activation)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// rowActivation builds the CEL variable bindings for one transaction.
func rowActivation(tx *domain.Transaction) map[string]any {
	row := map[string]any{
		"amount":            tx.Amount,
		"merchant":          tx.Merchant,
		"mcc":               tx.MCC,
		"description":       tx.Description,
		"purchase_category": tx.PurchaseCategory,
		"mcc_description":   tx.MCCDescription,
	}
	for k, v := range tx.Extra {
		row[k] = v
	}
	return map[string]any{
		"amount":            tx.Amount,
		"merchant":          tx.Merchant,
		"mcc":               tx.MCC,
		"description":       tx.Description,
		"purchase_category": tx.PurchaseCategory,
		"mcc_description":   tx.MCCDescription,
		"row":               row,
	}
}
