package trace

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNS runs a local DNS server answering PTR queries from names
func startDNS(t *testing.T, names map[string]string) string {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			name, ok := names[q.Name]
			if !ok || q.Qtype != dns.TypePTR {
				m.Rcode = dns.RcodeNameError
			} else {
				m.Answer = append(m.Answer, &dns.PTR{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
					Ptr: name,
				})
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() {
		_ = srv.ActivateAndServe()
	}()
	<-started
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})
	return pc.LocalAddr().String()
}

func TestDNSResolver_LookupAddr(t *testing.T) {
	addr := startDNS(t, map[string]string{
		"1.2.0.192.in-addr.arpa.": "mx.client.example.",
	})
	r := NewDNSResolver(time.Second, addr)

	name, err := r.LookupAddr(context.Background(), net.ParseIP("192.0.2.1"))
	require.NoError(t, err)
	assert.Equal(t, "mx.client.example", name, "trailing dot should be removed")

	_, err = r.LookupAddr(context.Background(), net.ParseIP("192.0.2.2"))
	assert.ErrorIs(t, err, ErrNoPTR)
}

func TestDNSResolver_Canceled(t *testing.T) {
	addr := startDNS(t, nil)
	r := NewDNSResolver(time.Second, addr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.LookupAddr(ctx, net.ParseIP("192.0.2.1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDNSResolver_DefaultPort(t *testing.T) {
	r := NewDNSResolver(time.Second, "192.0.2.53", "[2001:db8::53]:5353")
	assert.Equal(t, []string{"192.0.2.53:53", "[2001:db8::53]:5353"}, r.Nameservers)
}

func TestDNSResolver_NoNameservers(t *testing.T) {
	r := &DNSResolver{client: &dns.Client{}}
	_, err := r.LookupAddr(context.Background(), net.ParseIP("192.0.2.1"))
	assert.ErrorIs(t, err, ErrNoNameservers)
}
