package monitor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ProbeResult records one connectivity check.
type ProbeResult struct {
	Online           bool      `json:"online"`
	DNSOK            bool      `json:"dnsOk"`
	ServiceReachable bool      `json:"serviceReachable"`
	Error            string    `json:"error,omitempty"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// Prober checks whether the media service can be reached.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) ProbeResult

// Probe calls f(ctx).
func (f ProberFunc) Probe(ctx context.Context) ProbeResult {
	return f(ctx)
}

// NetworkProber resolves Host and then sends a HEAD request to URL,
// expecting HTTP 200.
type NetworkProber struct {
	Host     string
	URL      string
	Timeout  time.Duration
	Resolver *net.Resolver
	Client   *http.Client
}

// NewNetworkProber constructs a prober for host and url.
func NewNetworkProber(host, url string, timeout time.Duration) *NetworkProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NetworkProber{
		Host:     host,
		URL:      url,
		Timeout:  timeout,
		Resolver: net.DefaultResolver,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Probe performs the DNS and HTTP checks.
func (p *NetworkProber) Probe(ctx context.Context) ProbeResult {
	result := ProbeResult{CheckedAt: time.Now()}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if _, err := resolver.LookupHost(ctx, p.Host); err != nil {
		result.Error = fmt.Sprintf("DNS resolution failed: %v", err)
		return result
	}
	result.DNSOK = true

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("build probe request: %v", err)
		return result
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result
	}
	result.ServiceReachable = true
	result.Online = true
	return result
}
