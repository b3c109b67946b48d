package verimail

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optimode/verimail/check"
	"github.com/optimode/verimail/internal/mx"
	"github.com/optimode/verimail/internal/resultcache"
	"github.com/optimode/verimail/internal/smtppool"
)

// Verifier is the main fluent builder struct. Instantiate with New().
// Syntax filtering and the disposable-domain classifier always run;
// deliverability and existence probing are opt-in. When using
// existence probing or a persistent cache, call Close() when done to
// release pooled connections and write the cache back.
type Verifier struct {
	err error // configuration error, returned on Verify/VerifyBatch

	log      logrus.FieldLogger
	cache    *resultcache.Cache
	resolver mx.Resolver
	mxCache  *mx.Cache
	pool     *smtppool.Pool

	syntax  *check.SyntaxChecker
	domain  *check.DomainChecker
	deliver *check.DeliverabilityChecker
	exist   *check.ExistenceChecker
}

// New creates a new Verifier. By default it only performs the syntax
// filter and the disposable-domain classifier; no network access.
func New() *Verifier {
	return &Verifier{
		log:    logrus.StandardLogger(),
		cache:  resultcache.New(""),
		syntax: check.NewSyntaxChecker(),
		domain: check.NewDomainChecker(),
	}
}

// WithLogger replaces the default logrus standard logger.
func (v *Verifier) WithLogger(log logrus.FieldLogger) *Verifier {
	if log != nil {
		v.log = log
	}
	return v
}

// WithCache enables the persistent result cache at the given path.
// An empty path uses DefaultCacheFile in the working directory.
// A missing or corrupt file yields empty caches; the condition is
// logged, never fatal.
func (v *Verifier) WithCache(path string) *Verifier {
	if path == "" {
		path = resultcache.DefaultFile
	}
	v.cache = resultcache.New(path)
	if err := v.cache.Load(); err != nil {
		v.log.WithError(err).WithField("path", path).
			Warn("result cache unreadable, starting with empty caches")
	}
	return v
}

// WithDeliverability adds the domain deliverability check (MX
// presence, with optional A/AAAA fallback). Results are cached per
// domain for the whole run and, with WithCache, across runs.
func (v *Verifier) WithDeliverability(opts ...DeliverabilityOptions) *Verifier {
	o := defaultDeliverabilityOptions()
	if len(opts) > 0 {
		o = opts[0]
		if o.Timeout == 0 {
			o.Timeout = defaultDeliverabilityOptions().Timeout
		}
	}

	v.ensureMX(o.Timeout, o.Nameservers, o.LookupMX, o.LookupIP)

	v.deliver = check.NewDeliverabilityChecker(
		check.DeliverConfig{FallbackToA: o.FallbackToA},
		v.mxCache.LookupMX,
		v.resolver.LookupIP,
	)
	return v
}

// WithExistence adds the SMTP RCPT probe. HeloDomain and MailFrom are
// required. Probes share one connection pool (connections reused via
// RSET); call Close() when done.
func (v *Verifier) WithExistence(opts ExistenceOptions) *Verifier {
	if opts.HeloDomain == "" || opts.MailFrom == "" {
		v.err = ErrInvalidExistenceOptions
		return v
	}

	def := defaultExistenceOptions()
	if opts.Timeout == 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Port == "" {
		opts.Port = def.Port
	}
	if opts.MaxMXHosts == 0 {
		opts.MaxMXHosts = def.MaxMXHosts
	}
	if opts.MaxConnsPerHost == 0 {
		opts.MaxConnsPerHost = def.MaxConnsPerHost
	}

	// The existence probe shares the MX cache with the deliverability
	// check, so a domain's records are resolved at most once per TTL.
	v.ensureMX(opts.Timeout, nil, opts.LookupMX, nil)

	v.pool = smtppool.New(smtppool.Config{
		HeloDomain:      opts.HeloDomain,
		MailFrom:        opts.MailFrom,
		ConnectTimeout:  opts.Timeout,
		CommandTimeout:  2 * opts.Timeout,
		Port:            opts.Port,
		MaxConnsPerHost: opts.MaxConnsPerHost,
		DisableTLS:      opts.DisableTLS,
		Dial:            opts.Dial,
	})

	v.exist = check.NewExistenceChecker(check.ExistConfig{
		HeloDomain: opts.HeloDomain,
		MailFrom:   opts.MailFrom,
		MaxMXHosts: opts.MaxMXHosts,
	}, v.mxCache.LookupMX, v.pool)
	return v
}

// Close releases resources held by the Verifier: the persistent cache
// is written back (failures are logged, results already computed are
// not lost) and pooled SMTP connections are closed. Safe to call
// multiple times.
func (v *Verifier) Close() error {
	if err := v.cache.Persist(); err != nil {
		v.log.WithError(err).Warn("persisting result cache failed, skipping")
	}
	if v.pool != nil {
		return v.pool.Close()
	}
	return nil
}

// Verify runs the full configured pipeline for a single address:
// syntax filter, disposable-domain classifier, cache lookup, then the
// requested probes. The first failing stage terminates processing for
// the address; no network is touched after a local rejection.
func (v *Verifier) Verify(ctx context.Context, email string) (Result, error) {
	results, err := v.VerifyBatch(ctx, []string{email})
	if err != nil {
		return Result{}, err
	}
	return results[email], nil
}

// ensureMX creates the shared resolver and MX cache if they don't
// exist yet. Custom lookup funcs (tests) take precedence over the
// real DNS resolver.
func (v *Verifier) ensureMX(timeout time.Duration, nameservers []string, lookupMX check.MXLookup, lookupIP check.IPLookup) {
	if v.mxCache != nil {
		return
	}
	if lookupMX != nil {
		v.resolver = funcResolver{mx: lookupMX, ip: lookupIP}
	} else {
		v.resolver = mx.NewResolver(mx.ResolverConfig{
			Nameservers: nameservers,
			Timeout:     timeout,
		})
	}
	v.mxCache = mx.NewCache(v.resolver, timeout, 5*time.Minute)
}

// funcResolver adapts injected lookup funcs to the mx.Resolver
// interface.
type funcResolver struct {
	mx check.MXLookup
	ip check.IPLookup
}

func (f funcResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	return f.mx(ctx, domain)
}

func (f funcResolver) LookupIP(ctx context.Context, domain string) ([]net.IP, error) {
	if f.ip == nil {
		return nil, mx.ErrNotFound
	}
	return f.ip(ctx, domain)
}
