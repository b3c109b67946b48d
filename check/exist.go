package check

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/optimode/verimail/internal/parse"
	"github.com/optimode/verimail/internal/smtppool"
	"github.com/optimode/verimail/types"
)

// ExistConfig is the existence checker configuration.
type ExistConfig struct {
	HeloDomain string
	MailFrom   string
	MaxMXHosts int
}

// ExistenceChecker asks a domain's mail exchanger to accept a specific
// recipient without ever transmitting a message body. A 5xx reply to
// RCPT TO is a definitive negative; any network failure, timeout or
// protocol error means the server's position is unknown and is
// reported as indeterminate (Definitive=false), never as non-existent.
// The checker never retries a probe internally.
type ExistenceChecker struct {
	cfg      ExistConfig
	lookupMX MXLookup
	pool     *smtppool.Pool
}

// NewExistenceChecker creates an existence checker sharing the
// Verifier's MX lookup and SMTP connection pool.
func NewExistenceChecker(cfg ExistConfig, lookupMX MXLookup, pool *smtppool.Pool) *ExistenceChecker {
	return &ExistenceChecker{
		cfg:      cfg,
		lookupMX: lookupMX,
		pool:     pool,
	}
}

func (c *ExistenceChecker) Check(ctx context.Context, addr parse.Address) types.CheckResult {
	stage := types.StageExistence

	if !addr.Valid {
		return types.CheckResult{Stage: stage, Passed: false, Reason: "skipped: invalid email", Definitive: true}
	}

	records, err := c.lookupMX(ctx, addr.Domain)
	if err != nil || len(records) == 0 {
		if err == nil {
			err = fmt.Errorf("no MX records")
		}
		return types.CheckResult{
			Stage:  stage,
			Passed: false,
			Reason: fmt.Sprintf("could not verify mailbox existence: MX lookup failed: %v", err),
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})

	maxHosts := c.cfg.MaxMXHosts
	if maxHosts <= 0 || maxHosts > len(records) {
		maxHosts = len(records)
	}

	var lastErr error
	for i := 0; i < maxHosts; i++ {
		select {
		case <-ctx.Done():
			return types.CheckResult{
				Stage:  stage,
				Passed: false,
				Reason: fmt.Sprintf("could not verify mailbox existence: %v", ctx.Err()),
			}
		default:
		}

		mxHost := strings.TrimSuffix(records[i].Host, ".")

		code, msg, err := c.pool.CheckRCPT(mxHost, addr.Normalized)
		if err != nil {
			lastErr = err
			continue
		}

		if code >= 500 {
			return types.CheckResult{
				Stage:      stage,
				Passed:     false,
				Reason:     fmt.Sprintf("mailbox does not exist on the mail server: %s", msg),
				Definitive: true,
				Host:       mxHost,
				Code:       code,
			}
		}
		if code >= 400 {
			lastErr = fmt.Errorf("temporary failure %d: %s", code, msg)
			continue
		}

		return types.CheckResult{
			Stage:      stage,
			Passed:     true,
			Definitive: true,
			Host:       mxHost,
			Code:       code,
		}
	}

	return types.CheckResult{
		Stage:  stage,
		Passed: false,
		Reason: fmt.Sprintf("could not verify mailbox existence: %v", lastErr),
	}
}
