package check

import (
	"context"

	"github.com/optimode/verimail/internal/parse"
	"github.com/optimode/verimail/types"
)

// SyntaxChecker applies the structural filter: one or more local-part
// characters, "@", domain labels containing at least one dot, and a
// top-level label of at least two letters. No network or disk access;
// a failing address terminates the pipeline with the fixed format
// reason.
type SyntaxChecker struct{}

func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{}
}

func (c *SyntaxChecker) Check(_ context.Context, addr parse.Address) types.CheckResult {
	if !addr.Valid {
		return types.CheckResult{
			Stage:      types.StageSyntax,
			Passed:     false,
			Reason:     types.ReasonInvalidFormat,
			Definitive: true,
		}
	}
	return types.CheckResult{Stage: types.StageSyntax, Passed: true, Definitive: true}
}
