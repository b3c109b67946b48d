package verimail

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/optimode/verimail/internal/parse"
	"github.com/optimode/verimail/types"
)

// pending is one address that survived the local stages and awaits
// probing. Distinct submitted strings normalizing to the same address
// share one pending entry, so each address is probed at most once per
// run.
type pending struct {
	addr parse.Address
	raws []string
}

// batchRun carries the state of one VerifyBatch call.
type batchRun struct {
	v       *Verifier
	opts    BatchOptions
	tracker *progressTracker

	mu      sync.Mutex
	results map[string]Result
}

// VerifyBatch verifies many addresses concurrently and returns a
// result for every submitted string. Addresses are grouped by domain;
// the number of simultaneously probed domains and the number of
// concurrent blocking probes are bounded independently. Every address
// receives exactly one final result; once written it is never
// overwritten within the run.
func (v *Verifier) VerifyBatch(ctx context.Context, emails []string, opts ...BatchOptions) (map[string]Result, error) {
	if v.err != nil {
		return nil, v.err
	}

	o := mergeBatchOptions(opts)
	run := &batchRun{
		v:       v,
		opts:    o,
		results: make(map[string]Result, len(emails)),
	}

	unique := dedupe(emails)
	run.tracker = newProgressTracker(len(unique))
	stop := run.tracker.observe(o.ProgressInterval, o.OnProgress)
	defer stop()

	// Stage 1: partition through the local stages, group by domain.
	groups := run.partition(ctx, unique)

	// Stage 2: resolve what the cache already knows.
	run.prefilter(groups)

	v.log.WithFields(logrus.Fields{
		"addresses": len(unique),
		"domains":   len(groups),
	}).Debug("dispatching batch verification")

	// Stage 3: bounded dispatch. One goroutine per domain, admitted by
	// the domain gate; blocking probe work additionally holds a worker
	// slot, shared across all domains.
	g := new(errgroup.Group)
	domainGate := semaphore.NewWeighted(int64(o.MaxConcurrentDomains))
	workers := semaphore.NewWeighted(int64(o.MaxWorkers))

	for domain, items := range groups {
		if len(items) == 0 {
			continue
		}
		domain, items := domain, items
		g.Go(func() error {
			if err := domainGate.Acquire(ctx, 1); err != nil {
				run.failAll(items, fmt.Sprintf("batch aborted: %v", err))
				return nil
			}
			defer domainGate.Release(1)

			run.processDomain(ctx, domain, items, workers)
			return nil
		})
	}
	_ = g.Wait()

	return run.results, ctx.Err()
}

// dedupe keeps the first occurrence of every submitted string.
func dedupe(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	unique := make([]string, 0, len(emails))
	for _, raw := range emails {
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		unique = append(unique, raw)
	}
	return unique
}

// partition runs the syntax filter and the disposable classifier over
// every address, finalizing local rejections immediately, and groups
// the survivors by domain. No network access.
func (run *batchRun) partition(ctx context.Context, unique []string) map[string][]*pending {
	groups := make(map[string][]*pending)
	index := make(map[string]*pending)

	for _, raw := range unique {
		addr := parse.NewAddress(raw)

		if cr := run.v.syntax.Check(ctx, addr); !cr.Passed {
			run.finalize(raw, invalidResult(raw, cr.Reason))
			continue
		}
		if cr := run.v.domain.Check(ctx, addr); !cr.Passed {
			run.finalize(raw, invalidResult(raw, cr.Reason))
			continue
		}

		if p, ok := index[addr.Normalized]; ok {
			p.raws = append(p.raws, raw)
			continue
		}
		p := &pending{addr: addr, raws: []string{raw}}
		index[addr.Normalized] = p
		groups[addr.Domain] = append(groups[addr.Domain], p)
	}
	return groups
}

// prefilter resolves from the cache whatever it can before any probe:
// domains already known undeliverable reject all their addresses, and
// addresses with a cached existence verdict are finalized directly.
func (run *batchRun) prefilter(groups map[string][]*pending) {
	for domain, items := range groups {
		if run.v.deliver != nil {
			if deliverable, ok := run.v.cache.LookupDomain(domain); ok && !deliverable {
				run.failAll(items, types.ReasonCachedUndeliverable)
				delete(groups, domain)
				continue
			}
		}

		if run.v.exist != nil {
			kept := items[:0]
			for _, p := range items {
				exists, ok := run.v.cache.LookupEmail(p.addr.Normalized)
				if !ok {
					kept = append(kept, p)
					continue
				}
				if exists {
					run.passAll([]*pending{p}, "")
				} else {
					run.failAll([]*pending{p}, "mailbox does not exist on the mail server (cached)")
				}
			}
			if len(kept) == 0 {
				delete(groups, domain)
			} else {
				groups[domain] = kept
			}
		}
	}
}

// processDomain runs the network stages for one domain: the
// deliverability check at most once, then existence probing in
// bounded sub-batches.
func (run *batchRun) processDomain(ctx context.Context, domain string, items []*pending, workers *semaphore.Weighted) {
	if run.v.deliver != nil {
		deliverable, reason := run.checkDomain(ctx, domain, items[0].addr, workers)
		if !deliverable {
			run.failAll(items, reason)
			return
		}
	}

	if run.v.exist == nil {
		warning := ""
		if run.v.deliver != nil {
			warning = types.WarningDeliverabilityOnly
		}
		run.passAll(items, warning)
		return
	}

	run.probeExistence(ctx, domain, items, workers)
}

// checkDomain resolves the domain's deliverability, consulting the
// cache first and recording the probe verdict with first-writer-wins
// semantics.
func (run *batchRun) checkDomain(ctx context.Context, domain string, addr parse.Address, workers *semaphore.Weighted) (bool, string) {
	if deliverable, ok := run.v.cache.LookupDomain(domain); ok {
		if deliverable {
			return true, ""
		}
		return false, types.ReasonCachedUndeliverable
	}

	if err := workers.Acquire(ctx, 1); err != nil {
		return false, fmt.Sprintf("batch aborted: %v", err)
	}
	cr := run.v.deliver.Check(ctx, addr)
	workers.Release(1)

	stored, conflict := run.v.cache.RecordDomain(domain, cr.Passed)
	if conflict {
		run.v.log.WithField("domain", domain).
			Warn("conflicting deliverability verdicts within one run, keeping the first")
	}

	if stored {
		return true, ""
	}
	if !cr.Passed {
		return false, cr.Reason
	}
	// Our probe succeeded but an earlier writer recorded a negative.
	return false, types.ReasonCachedUndeliverable
}

// probeExistence probes the mailboxes of one domain in sub-batches. A
// transport failure is terminal for the domain: every address without
// an individual outcome receives the shared error, and no probe is
// retried.
func (run *batchRun) probeExistence(ctx context.Context, domain string, items []*pending, workers *semaphore.Weighted) {
	var (
		mu        sync.Mutex
		domainErr string
	)
	fail := func(reason string) {
		mu.Lock()
		if domainErr == "" {
			domainErr = reason
		}
		mu.Unlock()
	}
	failed := func() string {
		mu.Lock()
		defer mu.Unlock()
		return domainErr
	}

	size := run.opts.SubBatchSize
	for start := 0; start < len(items); start += size {
		if failed() != "" {
			break
		}
		end := min(start+size, len(items))

		var wg sync.WaitGroup
		for _, p := range items[start:end] {
			p := p
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := workers.Acquire(ctx, 1); err != nil {
					fail(fmt.Sprintf("batch aborted: %v", err))
					return
				}
				cr := run.v.exist.Check(ctx, p.addr)
				workers.Release(1)

				switch {
				case cr.Passed:
					run.recordEmail(p.addr.Normalized, true)
					run.passAll([]*pending{p}, "")
				case cr.Definitive:
					run.recordEmail(p.addr.Normalized, false)
					run.failAll([]*pending{p}, cr.Reason)
				default:
					// Server's position unknown: not cached, and
					// terminal for the domain's remaining addresses.
					fail(cr.Reason)
					run.failAll([]*pending{p}, cr.Reason)
				}
			}()
		}
		wg.Wait()
	}

	if reason := failed(); reason != "" {
		run.v.log.WithFields(logrus.Fields{
			"domain": domain,
			"reason": reason,
		}).Debug("domain probe failed, failing remaining addresses")
		run.failAll(items, reason) // already-finalized addresses keep their result
	}
}

// recordEmail writes an existence verdict with first-writer-wins
// semantics, logging conflicts.
func (run *batchRun) recordEmail(address string, exists bool) {
	if _, conflict := run.v.cache.RecordEmail(address, exists); conflict {
		run.v.log.WithField("email", address).
			Warn("conflicting existence verdicts within one run, keeping the first")
	}
}

// finalize writes the result for one submitted string. The first
// result wins; later writes for the same string are dropped, which is
// what makes domain-failure containment safe to apply to a mixed set
// of resolved and unresolved addresses.
func (run *batchRun) finalize(raw string, r Result) {
	run.mu.Lock()
	if _, done := run.results[raw]; done {
		run.mu.Unlock()
		return
	}
	run.results[raw] = r
	run.mu.Unlock()
	run.tracker.add(1)
}

func (run *batchRun) passAll(items []*pending, warning string) {
	for _, p := range items {
		for _, raw := range p.raws {
			run.finalize(raw, validResult(raw, p.addr.Normalized, warning))
		}
	}
}

func (run *batchRun) failAll(items []*pending, reason string) {
	for _, p := range items {
		for _, raw := range p.raws {
			run.finalize(raw, invalidResult(raw, reason))
		}
	}
}
