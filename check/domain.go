package check

import (
	"context"

	"github.com/optimode/verimail/internal/disposable"
	"github.com/optimode/verimail/internal/parse"
	"github.com/optimode/verimail/types"
)

// DomainChecker rejects addresses whose domain is on the static
// denylist of disposable-mail providers. The match is case-insensitive
// and independent of the local part; a hit bypasses both the cache and
// every network stage.
type DomainChecker struct{}

func NewDomainChecker() *DomainChecker {
	return &DomainChecker{}
}

func (c *DomainChecker) Check(_ context.Context, addr parse.Address) types.CheckResult {
	if !addr.Valid {
		return types.CheckResult{
			Stage:      types.StageDisposable,
			Passed:     false,
			Reason:     "skipped: invalid email",
			Definitive: true,
		}
	}

	if disposable.IsDisposable(addr.Domain) {
		return types.CheckResult{
			Stage:      types.StageDisposable,
			Passed:     false,
			Reason:     types.ReasonDisposableDomain,
			Definitive: true,
		}
	}

	return types.CheckResult{Stage: types.StageDisposable, Passed: true, Definitive: true}
}
