package verimail

import (
	"net"
	"time"

	"github.com/optimode/verimail/check"
)

// DeliverabilityOptions configures the domain deliverability check.
// Passing options replaces the defaults wholesale, down to the zero
// value of each field.
type DeliverabilityOptions struct {
	// Timeout is the maximum time for one MX lookup. Default: 5s
	Timeout time.Duration
	// FallbackToA when true accepts A/AAAA records when no MX record
	// is found. Default: true
	FallbackToA bool
	// Nameservers overrides the DNS servers to query
	// (e.g. "8.8.8.8:53"). Default: system resolvers.
	Nameservers []string
	// LookupMX overrides the DNS resolver, mainly for tests.
	LookupMX check.MXLookup
	// LookupIP overrides the A/AAAA resolver, mainly for tests.
	LookupIP check.IPLookup
}

func defaultDeliverabilityOptions() DeliverabilityOptions {
	return DeliverabilityOptions{
		Timeout:     5 * time.Second,
		FallbackToA: true,
	}
}

// ExistenceOptions configures the SMTP mailbox-existence probe.
// HeloDomain and MailFrom are required; they identify the prober to
// every mail exchanger contacted.
type ExistenceOptions struct {
	// HeloDomain is the hostname sent in the EHLO command. Required.
	HeloDomain string
	// MailFrom is the address sent in the MAIL FROM command. Required.
	MailFrom string
	// Timeout is the per-probe timeout: connection establishment and,
	// doubled, the whole command exchange. Default: 5s
	Timeout time.Duration
	// Port is the SMTP port. Default: 25
	Port string
	// MaxMXHosts is how many MX hosts to try sequentially. Default: 2
	MaxMXHosts int
	// MaxConnsPerHost is the max pooled SMTP connections per MX host. Default: 3
	MaxConnsPerHost int
	// DisableTLS skips the opportunistic STARTTLS upgrade.
	// Default: false (TLS negotiated when offered, never required)
	DisableTLS bool
	// LookupMX overrides the DNS resolver, mainly for tests.
	LookupMX check.MXLookup
	// Dial is injectable for testing. Defaults to net.DialTimeout.
	Dial func(network, address string, timeout time.Duration) (net.Conn, error)
}

func defaultExistenceOptions() ExistenceOptions {
	return ExistenceOptions{
		Timeout:         5 * time.Second,
		Port:            "25",
		MaxMXHosts:      2,
		MaxConnsPerHost: 3,
	}
}

// BatchOptions configures a VerifyBatch run. Zero fields take their
// defaults.
type BatchOptions struct {
	// SubBatchSize is how many addresses of one domain are probed per
	// wave, so one mail server never sees unboundedly many
	// simultaneous sessions. Default: 20
	SubBatchSize int
	// MaxWorkers caps concurrent blocking probes (DNS queries and SMTP
	// sessions) across all domains. Default: 16
	MaxWorkers int
	// MaxConcurrentDomains caps how many domains are actively probed
	// at once. Sized smaller than MaxWorkers. Default: 8
	MaxConcurrentDomains int
	// OnProgress, when set, receives progress snapshots at coarse
	// intervals plus one final snapshot. Never called per address.
	OnProgress func(Progress)
	// ProgressInterval is the snapshot cadence. Default: 1s
	ProgressInterval time.Duration
}

func defaultBatchOptions() BatchOptions {
	return BatchOptions{
		SubBatchSize:         20,
		MaxWorkers:           16,
		MaxConcurrentDomains: 8,
		ProgressInterval:     time.Second,
	}
}

// mergeBatchOptions fills unset fields with defaults.
func mergeBatchOptions(opts []BatchOptions) BatchOptions {
	o := defaultBatchOptions()
	if len(opts) == 0 {
		return o
	}
	u := opts[0]
	if u.SubBatchSize > 0 {
		o.SubBatchSize = u.SubBatchSize
	}
	if u.MaxWorkers > 0 {
		o.MaxWorkers = u.MaxWorkers
	}
	if u.MaxConcurrentDomains > 0 {
		o.MaxConcurrentDomains = u.MaxConcurrentDomains
	}
	if u.ProgressInterval > 0 {
		o.ProgressInterval = u.ProgressInterval
	}
	o.OnProgress = u.OnProgress
	return o
}
