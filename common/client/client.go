// Package client holds the shared HTTP client used for every upstream
// provider call. A single client (and its DNS cache) is reused across all
// adaptors so keep-alive connections and resolved addresses are shared
// instead of re-established per provider.
package client

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

var resolver = &dnscache.Resolver{}

func init() {
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			resolver.Refresh(true)
		}
	}()
}

func dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return dialer.DialContext(ctx, network, addr)
	}

	ips, err := resolver.LookupHost(ctx, host)
	if err != nil || len(ips) == 0 {
		return dialer.DialContext(ctx, network, addr)
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

var transport = &http.Transport{
	DialContext:           dialContext,
	MaxIdleConns:          200,
	MaxIdleConnsPerHost:   50,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: time.Second,
}

// HTTPClient is shared by every adaptor for upstream provider calls. It has
// no overall Timeout set, since a fixed client timeout would cut off
// legitimate long-lived streaming responses. The dispatch pipeline sets no
// deadline of its own either (config.RequestDeadlineMs and
// config.StreamIdleTimeoutMs are not applied), so an upstream call is
// bounded only by the inbound request's context and the transport settings
// above.
var HTTPClient = &http.Client{Transport: transport}
