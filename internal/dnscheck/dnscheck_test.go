package dnscheck

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs an in-process DNS server and returns its address
func startServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	var started sync.WaitGroup
	started.Add(1)
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: started.Done}
	go func() {
		_ = server.ActivateAndServe()
	}()
	started.Wait()
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func answer(ip string) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if ip != "" {
			rr, _ := dns.NewRR(r.Question[0].Name + " 60 IN A " + ip)
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	}
}

func TestLookup(t *testing.T) {
	addr := startServer(t, answer("203.0.113.5"))
	c := New(addr, time.Millisecond, 1, nil)

	addrs, err := c.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.5"}, addrs)
}

func TestLookupNXDomain(t *testing.T) {
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		_ = w.WriteMsg(m)
	})
	c := New(addr, time.Millisecond, 1, nil)

	addrs, err := c.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestLookupServerFailure(t *testing.T) {
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeServerFailure)
		_ = w.WriteMsg(m)
	})
	c := New(addr, time.Millisecond, 1, nil)

	_, err := c.Lookup(context.Background(), "example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVFAIL")
}

func TestWaitUntilPropagated(t *testing.T) {
	var queries atomic.Int32
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		if queries.Add(1) < 3 {
			answer("198.51.100.1")(w, r)
			return
		}
		answer("203.0.113.5")(w, r)
	})
	c := New(addr, 5*time.Millisecond, 5, nil)

	require.NoError(t, c.Wait(context.Background(), "example.com", "203.0.113.5"))
	assert.Equal(t, int32(3), queries.Load())
}

func TestWaitGivesUp(t *testing.T) {
	var queries atomic.Int32
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		queries.Add(1)
		answer("198.51.100.1")(w, r)
	})
	c := New(addr, time.Millisecond, 3, nil)

	err := c.Wait(context.Background(), "example.com", "203.0.113.5")
	assert.ErrorIs(t, err, ErrNotPropagated)
	assert.Contains(t, err.Error(), "198.51.100.1")
	assert.Equal(t, int32(3), queries.Load())
}

func TestWaitHonorsContext(t *testing.T) {
	addr := startServer(t, answer(""))
	c := New(addr, time.Hour, 10, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Wait(ctx, "example.com", "203.0.113.5")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewAddsDefaultPort(t *testing.T) {
	assert.Equal(t, "8.8.8.8:53", New("8.8.8.8", time.Second, 0, nil).resolver)
	assert.Equal(t, 1, New("8.8.8.8", time.Second, 0, nil).attempts)
	assert.Equal(t, "127.0.0.1:5353", New("127.0.0.1:5353", time.Second, 3, nil).resolver)
}
