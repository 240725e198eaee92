package trace

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/miekg/dns"
)

var (
	// ErrNoPTR is returned when the reverse zone has no PTR record for the address
	ErrNoPTR = errors.New("no PTR record found")
	// ErrNoNameservers is returned by a resolver that has nowhere to send queries
	ErrNoNameservers = errors.New("no nameservers configured")
)

// Resolver resolves the name of a connecting client for the Received header
type Resolver interface {
	LookupAddr(ctx context.Context, ip net.IP) (string, error)
}

// DNSResolver looks up PTR records with github.com/miekg/dns against a fixed
// list of nameservers, trying them in order.
type DNSResolver struct {
	Nameservers []string // host:port
	client      *dns.Client
}

// NewDNSResolver creates a resolver querying the given nameservers, port 53 is
// assumed when none is given. With no nameservers the ones from
// /etc/resolv.conf are used.
func NewDNSResolver(timeout time.Duration, nameservers ...string) *DNSResolver {
	if len(nameservers) == 0 {
		nameservers = systemNameservers()
	}
	servers := make([]string, 0, len(nameservers))
	for _, s := range nameservers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		servers = append(servers, s)
	}
	return &DNSResolver{
		Nameservers: servers,
		client:      &dns.Client{Timeout: timeout},
	}
}

func systemNameservers() []string {
	config, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil
	}
	servers := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		servers = append(servers, net.JoinHostPort(s, config.Port))
	}
	return servers
}

// LookupAddr returns the first PTR name of ip, without the trailing dot
func (r *DNSResolver) LookupAddr(ctx context.Context, ip net.IP) (string, error) {
	if len(r.Nameservers) == 0 {
		return "", ErrNoNameservers
	}
	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", errors.Wrap(err, 0)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.Nameservers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = errors.Wrap(err, 0)
			continue
		}
		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return "", ErrNoPTR
		default:
			lastErr = errors.Errorf("PTR query for %s failed with rcode %s", arpa, dns.RcodeToString[resp.Rcode])
			continue
		}
		for _, ans := range resp.Answer {
			if ptr, ok := ans.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
		return "", ErrNoPTR
	}
	return "", lastErr
}

// RemoteIP extracts the IP address from addr, nil if it has none
func RemoteIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case nil:
		return nil
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	return net.ParseIP(host)
}
