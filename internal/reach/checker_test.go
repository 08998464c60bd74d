package reach

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeResolver struct {
	mu      sync.Mutex
	hosts   map[string][]string
	calls   map[string]int
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newFakeResolver(hosts map[string][]string) *fakeResolver {
	return &fakeResolver{hosts: hosts, calls: make(map[string]int)}
}

func (f *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[host]++
	addrs, ok := f.hosts[host]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func (f *fakeResolver) callCount(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[host]
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestReachable(t *testing.T) {
	res := newFakeResolver(map[string][]string{
		"acme.it":  {"192.0.2.1"},
		"empty.it": {},
	})
	c := NewDNSChecker(res, Options{})
	ctx := context.Background()

	assert.True(t, c.Reachable(ctx, "info@acme.it"))
	assert.False(t, c.Reachable(ctx, "info@missing.it"))
	assert.False(t, c.Reachable(ctx, "info@empty.it"))
	assert.False(t, c.Reachable(ctx, "no-domain"))
}

func TestReachable_LogsFailure(t *testing.T) {
	logs := observeLogs(t)
	c := NewDNSChecker(newFakeResolver(nil), Options{})

	assert.False(t, c.Reachable(context.Background(), "x@nxdomain.example"))

	entries := logs.FilterMessage("dns: lookup failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "nxdomain.example", fields["domain"])
	assert.Contains(t, fields["error"], "no such host")
}

func TestReachable_Timeout(t *testing.T) {
	res := newFakeResolver(map[string][]string{"slow.it": {"192.0.2.9"}})
	res.delay = time.Second
	c := NewDNSChecker(res, Options{Timeout: 10 * time.Millisecond})

	assert.False(t, c.Reachable(context.Background(), "a@slow.it"))
}

type errResolver struct{}

func (errResolver) LookupHost(context.Context, string) ([]string, error) {
	return nil, errors.New("boom")
}

func TestReachable_NeverPanicsOnError(t *testing.T) {
	c := NewDNSChecker(errResolver{}, Options{})
	assert.NotPanics(t, func() {
		assert.False(t, c.Reachable(context.Background(), "a@b.it"))
	})
}

func TestCheckAll_OrderAndDedup(t *testing.T) {
	res := newFakeResolver(map[string][]string{
		"acme.it":  {"192.0.2.1"},
		"beta.com": {"192.0.2.2"},
	})
	c := NewDNSChecker(res, Options{Concurrency: 4})

	emails := []string{"a@acme.it", "b@nope.it", "", "a@acme.it", "c@beta.com"}
	got := c.CheckAll(context.Background(), emails)

	assert.Equal(t, []bool{true, false, false, true, true}, got)
	assert.Equal(t, 1, res.callCount("acme.it"))
	assert.Equal(t, 0, res.callCount(""))
}

func TestCheckAll_BoundedConcurrency(t *testing.T) {
	hosts := map[string][]string{}
	var emails []string
	for _, d := range []string{"a.it", "b.it", "c.it", "d.it", "e.it", "f.it", "g.it", "h.it"} {
		hosts[d] = []string{"192.0.2.1"}
		emails = append(emails, "x@"+d)
	}
	res := newFakeResolver(hosts)
	res.delay = 20 * time.Millisecond
	c := NewDNSChecker(res, Options{Concurrency: 2})

	got := c.CheckAll(context.Background(), emails)
	for _, ok := range got {
		assert.True(t, ok)
	}
	assert.LessOrEqual(t, res.maxSeen.Load(), int32(2))
}

func TestCheckAll_Empty(t *testing.T) {
	c := NewDNSChecker(newFakeResolver(nil), Options{})
	assert.Empty(t, c.CheckAll(context.Background(), nil))
}
