package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pumpkit/internal/logging"
)

// New returns an http.Client configured for outbound requests.
// It respects HTTP(S)_PROXY/NO_PROXY unless a proxy is set with SetProxy.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(logger),
	}
}

// Transport returns an http.Transport clone with the environment proxy policy.
func Transport(logger logging.Logger) *http.Transport {
	log := logging.OrNop(logger)

	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		log.Debug("default transport is %T, building a fresh one", http.DefaultTransport)
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}

	transport := base.Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return transport
}

// SetProxy routes every request of client through rawURL. An empty rawURL is a no-op.
func SetProxy(client *http.Client, rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if client == nil || rawURL == "" {
		return nil
	}
	proxyURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid proxy url %q: %w", rawURL, err)
	}
	if proxyURL.Scheme == "" || proxyURL.Host == "" {
		return fmt.Errorf("invalid proxy url %q: scheme and host required", rawURL)
	}

	transport := findTransport(client.Transport)
	if transport == nil {
		return fmt.Errorf("client transport %T does not support proxies", client.Transport)
	}
	transport.Proxy = http.ProxyURL(proxyURL)
	return nil
}

func findTransport(rt http.RoundTripper) *http.Transport {
	switch typed := rt.(type) {
	case *http.Transport:
		return typed
	case *circuitBreakerRoundTripper:
		return findTransport(typed.base)
	default:
		return nil
	}
}
