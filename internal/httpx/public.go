package httpx

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrBlockedAddress is returned when a request would reach a loopback,
// private, link-local or unspecified address.
var ErrBlockedAddress = errors.New("address not allowed")

// PublicOnlyClient returns a client for fetching URLs supplied by remote
// users. It ignores proxy settings and refuses to connect to non-public
// addresses, checked after DNS resolution.
func PublicOnlyClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = externalHTTPClient.Timeout
	}
	dialer := &net.Dialer{
		Timeout: 30 * time.Second,
		Control: refuseNonPublic,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func refuseNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !Public(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// Public reports whether ip is a routable public address
func Public(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified())
}
