// Package bootstrap resolves the initial set of bootstrapper peers: a
// static list from configuration plus, optionally, a DNS TXT record
// (spec §4.8).
package bootstrap

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
)

// Entry is one resolved bootstrapper address/identity pair.
type Entry struct {
	Addr       peer.Addr
	ExpectedID *nodeid.ID
}

// Static parses the repeatable --bootstrap-node flag values, each of the
// form "host:port" or "host:port/<64-hex-id>".
func Static(values []string) ([]Entry, error) {
	out := make([]Entry, 0, len(values))
	for _, v := range values {
		host, portStr, idHex, err := splitBootstrapNode(v)
		if err != nil {
			return nil, err
		}
		ips, err := net.LookupIP(host)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: resolve %q: %w", host, err)
		}
		port, err := parsePort(portStr)
		if err != nil {
			return nil, err
		}
		e := Entry{Addr: peer.Addr{IP: ips[0], Port: port}}
		if idHex != "" {
			id, err := nodeid.FromHex(idHex)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: %w", err)
			}
			e.ExpectedID = &id
		}
		out = append(out, e)
	}
	return out, nil
}

func splitBootstrapNode(v string) (host, port, id string, err error) {
	addrPart := v
	if i := strings.IndexByte(v, '/'); i >= 0 {
		addrPart, id = v[:i], v[i+1:]
	}
	host, port, err = net.SplitHostPort(addrPart)
	if err != nil {
		return "", "", "", fmt.Errorf("bootstrap: invalid node %q: %w", v, err)
	}
	return host, port, id, nil
}

func parsePort(s string) (uint16, error) {
	var p uint16
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("bootstrap: invalid port %q", s)
		}
		p = p*10 + uint16(r-'0')
	}
	return p, nil
}

// ResolveDNS looks up the TXT record at domain and parses it as a
// comma-separated list of "host:port/<id>" entries, the format the
// reference bootstrapper publishes (spec §4.8). dnssecRequired sets the
// DNSSEC OK (DO) bit on the query; the answer's signatures and its
// authenticated-data flag are not checked here.
func ResolveDNS(domain string, dnssecRequired bool, timeout time.Duration) ([]Entry, error) {
	c := &dns.Client{Timeout: timeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeTXT)
	if dnssecRequired {
		m.SetEdns0(4096, true)
	}

	in, _, err := c.Exchange(m, resolverAddr())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dns exchange: %w", err)
	}

	var raw string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			raw += strings.Join(txt.Txt, "")
		}
	}
	if raw == "" {
		return nil, fmt.Errorf("bootstrap: no TXT record found for %s", domain)
	}

	parts := strings.Split(raw, ",")
	return Static(parts)
}

func resolverAddr() string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return "8.8.8.8:53"
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}
