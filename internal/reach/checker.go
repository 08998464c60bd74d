// Package reach probes whether the domain of an email address resolves.
package reach

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/saldang/grezzi/internal/heuristics"
)

// Resolver is the subset of *net.Resolver used by the checker.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Checker decides whether an email's domain is reachable.
type Checker interface {
	Reachable(ctx context.Context, email string) bool
	CheckAll(ctx context.Context, emails []string) []bool
}

// Options tunes a DNSChecker.
type Options struct {
	// Concurrency bounds parallel lookups in CheckAll. Default: 1.
	Concurrency int
	// Timeout caps a single lookup. Zero keeps the resolver's own limit.
	Timeout time.Duration
	// RatePerSec throttles lookups across all workers. Zero disables it.
	RatePerSec float64
}

// DNSChecker resolves email domains with a single best-effort lookup.
type DNSChecker struct {
	resolver Resolver
	opts     Options
	limiter  *rate.Limiter
}

// NewDNSChecker builds a checker. A nil resolver uses net.DefaultResolver.
func NewDNSChecker(resolver Resolver, opts Options) *DNSChecker {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	c := &DNSChecker{resolver: resolver, opts: opts}
	if opts.RatePerSec > 0 {
		burst := max(1, int(opts.RatePerSec))
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return c
}

// Reachable reports whether the domain after "@" resolves to at least one
// address. Failures are logged and reported as false; nothing is retried.
func (c *DNSChecker) Reachable(ctx context.Context, email string) bool {
	domain := heuristics.EmailDomain(email)
	log := zap.L().With(zap.String("domain", domain))

	if domain == "" {
		log.Warn("dns: no domain in email", zap.String("email", email))
		return false
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			log.Warn("dns: rate limiter wait", zap.Error(err))
			return false
		}
	}

	lookupCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	addrs, err := c.resolver.LookupHost(lookupCtx, domain)
	if err != nil {
		log.Warn("dns: lookup failed", zap.Error(err))
		return false
	}
	if len(addrs) == 0 {
		log.Warn("dns: lookup returned no addresses")
		return false
	}
	return true
}

// CheckAll checks every email and returns the answers in input order.
// Each distinct email is looked up once; an empty entry is false without a
// lookup.
func (c *DNSChecker) CheckAll(ctx context.Context, emails []string) []bool {
	out := make([]bool, len(emails))

	var unique []string
	index := make(map[string][]int)
	for i, e := range emails {
		if e == "" {
			continue
		}
		if _, ok := index[e]; !ok {
			unique = append(unique, e)
		}
		index[e] = append(index[e], i)
	}

	answers := make([]bool, len(unique))
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, e := range unique {
		g.Go(func() error {
			answers[i] = c.Reachable(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	for i, e := range unique {
		for _, pos := range index[e] {
			out[pos] = answers[i]
		}
	}
	return out
}
