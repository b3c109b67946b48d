package check

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/optimode/verimail/internal/parse"
	"github.com/optimode/verimail/types"
)

// MXLookup resolves the mail exchangers of a domain. The Verifier
// wires in an MX cache backed by a real DNS resolver; tests substitute
// counting stubs.
type MXLookup func(ctx context.Context, domain string) ([]*net.MX, error)

// IPLookup resolves A/AAAA records, used for the optional fallback
// when a domain has no MX record but still runs a mail host.
type IPLookup func(ctx context.Context, domain string) ([]net.IP, error)

// DeliverConfig is the deliverability checker configuration.
type DeliverConfig struct {
	FallbackToA bool
}

// DeliverabilityChecker verifies that a domain's mail infrastructure
// can accept messages, independent of any specific mailbox. Failures
// surface the underlying resolver error verbatim in the reason.
type DeliverabilityChecker struct {
	cfg      DeliverConfig
	lookupMX MXLookup
	lookupIP IPLookup
}

func NewDeliverabilityChecker(cfg DeliverConfig, lookupMX MXLookup, lookupIP IPLookup) *DeliverabilityChecker {
	return &DeliverabilityChecker{
		cfg:      cfg,
		lookupMX: lookupMX,
		lookupIP: lookupIP,
	}
}

func (c *DeliverabilityChecker) Check(ctx context.Context, addr parse.Address) types.CheckResult {
	stage := types.StageDeliverability

	if !addr.Valid {
		return types.CheckResult{Stage: stage, Passed: false, Reason: "skipped: invalid email", Definitive: true}
	}

	records, err := c.lookupMX(ctx, addr.Domain)
	if err != nil || len(records) == 0 {
		if c.cfg.FallbackToA && c.lookupIP != nil {
			if ips, aErr := c.lookupIP(ctx, addr.Domain); aErr == nil && len(ips) > 0 {
				return types.CheckResult{
					Stage:      stage,
					Passed:     true,
					Reason:     "no MX record, but address record found (fallback)",
					Definitive: true,
					Host:       ips[0].String(),
				}
			}
		}
		if err == nil {
			err = fmt.Errorf("no MX records")
		}
		return types.CheckResult{
			Stage:      stage,
			Passed:     false,
			Reason:     fmt.Sprintf("domain %s cannot receive mail: %v", addr.Domain, err),
			Definitive: true,
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})

	primary := strings.TrimSuffix(records[0].Host, ".")
	return types.CheckResult{
		Stage:      stage,
		Passed:     true,
		Reason:     fmt.Sprintf("%d MX record(s) found", len(records)),
		Definitive: true,
		Host:       primary,
	}
}
