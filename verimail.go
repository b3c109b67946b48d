// Package verimail verifies email address deliverability: syntax
// filtering, disposable-domain classification, MX-based domain
// deliverability and SMTP mailbox existence probing, with a persistent
// result cache and a bounded-concurrency batch scheduler.
//
// Basic usage:
//
//	result, err := verimail.New().Verify(ctx, "user@example.com")
//
// Full pipeline over a batch:
//
//	v := verimail.New().
//	    WithCache("verimail_cache.json").
//	    WithDeliverability(verimail.DeliverabilityOptions{}).
//	    WithExistence(verimail.ExistenceOptions{
//	        HeloDomain: "myapp.com",
//	        MailFrom:   "verify@myapp.com",
//	    })
//	defer v.Close()
//
//	results, err := v.VerifyBatch(ctx, emails)
package verimail

import (
	"github.com/optimode/verimail/internal/resultcache"
	"github.com/optimode/verimail/types"
)

// DefaultCacheFile is the cache file used by WithCache("").
const DefaultCacheFile = resultcache.DefaultFile

// CheckResult is a re-export from the types package so that consumers
// don't need to import the types package directly.
type CheckResult = types.CheckResult

// Stage is a re-export.
type Stage = types.Stage

// Stage constants re-exported.
const (
	StageSyntax         = types.StageSyntax
	StageDisposable     = types.StageDisposable
	StageDeliverability = types.StageDeliverability
	StageExistence      = types.StageExistence
)

// Fixed reason and warning strings re-exported.
const (
	ReasonInvalidFormat       = types.ReasonInvalidFormat
	ReasonDisposableDomain    = types.ReasonDisposableDomain
	ReasonCachedUndeliverable = types.ReasonCachedUndeliverable

	WarningDeliverabilityOnly = types.WarningDeliverabilityOnly
)
