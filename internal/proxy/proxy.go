// Package proxy turns proxy URIs from proxy.txt into HTTP transports.
package proxy

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	xproxy "golang.org/x/net/proxy"

	"github.com/bardlex/stobixd/pkg/errors"
)

// Kind is the proxy protocol selected by the URI scheme
type Kind int

const (
	// KindUnsupported is any scheme other than the four below
	KindUnsupported Kind = iota
	// KindHTTP is an http:// forward proxy
	KindHTTP
	// KindHTTPS is an https:// forward proxy
	KindHTTPS
	// KindSOCKS4 is a socks4:// proxy
	KindSOCKS4
	// KindSOCKS5 is a socks5:// proxy
	KindSOCKS5
)

// String returns the URI scheme of the kind
func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindHTTPS:
		return "https"
	case KindSOCKS4:
		return "socks4"
	case KindSOCKS5:
		return "socks5"
	default:
		return "unsupported"
	}
}

// Spec is a classified proxy URI
type Spec struct {
	Kind Kind
	Raw  string
	URL  *url.URL
}

// Parse classifies raw by its scheme. It never fails; unknown or malformed
// URIs come back as KindUnsupported and are rejected by NewAdapter.
func Parse(raw string) Spec {
	raw = strings.TrimSpace(raw)
	spec := Spec{Kind: KindUnsupported, Raw: raw}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return spec
	}
	spec.URL = u

	switch strings.ToLower(u.Scheme) {
	case "http":
		spec.Kind = KindHTTP
	case "https":
		spec.Kind = KindHTTPS
	case "socks4":
		spec.Kind = KindSOCKS4
	case "socks5":
		spec.Kind = KindSOCKS5
	}
	return spec
}

// String returns the URI with any password redacted
func (s Spec) String() string {
	if s.URL == nil {
		return s.Raw
	}
	return s.URL.Redacted()
}

// Adapter carries the transport that routes requests through one proxy
type Adapter struct {
	spec      Spec
	direct    bool
	transport *http.Transport
}

// Direct returns an adapter that connects without a proxy
func Direct() *Adapter {
	t := baseTransport()
	t.Proxy = nil
	return &Adapter{direct: true, transport: t}
}

// NewAdapter builds the transport for spec. No connection is made here.
func NewAdapter(spec Spec) (*Adapter, error) {
	t := baseTransport()

	switch spec.Kind {
	case KindHTTP, KindHTTPS:
		// Credentials in the URI are sent as Proxy-Authorization by net/http
		t.Proxy = http.ProxyURL(spec.URL)

	case KindSOCKS5:
		t.Proxy = nil
		dialer, err := xproxy.FromURL(spec.URL, xproxy.Direct)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeProxy, "new_adapter",
				"invalid socks5 proxy").WithContext("proxy", spec.String())
		}
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			t.DialContext = cd.DialContext
		} else {
			t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}

	case KindSOCKS4:
		t.Proxy = nil
		t.DialContext = newSOCKS4Dialer(spec.URL).DialContext

	default:
		return nil, errors.New(errors.ErrorTypeProxy, "new_adapter",
			"unsupported proxy scheme").WithContext("proxy", spec.String())
	}

	return &Adapter{spec: spec, transport: t}, nil
}

// Transport returns the adapter's HTTP transport
func (a *Adapter) Transport() *http.Transport {
	return a.transport
}

// Spec returns the proxy the adapter was built from; zero for Direct
func (a *Adapter) Spec() Spec {
	return a.spec
}

// IsDirect reports whether the adapter bypasses any proxy
func (a *Adapter) IsDirect() bool {
	return a.direct
}

// String returns a log-safe description of the adapter
func (a *Adapter) String() string {
	if a.direct {
		return "direct"
	}
	return a.spec.String()
}

func baseTransport() *http.Transport {
	return http.DefaultTransport.(*http.Transport).Clone()
}
