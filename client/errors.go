package client

import "github.com/pkg/errors"

var (
	// ErrServiceNotFound means no port in the scan range answered the
	// discovery probe. Recoverable: the broker may simply not be running yet.
	ErrServiceNotFound = errors.New("omnikey broker not found on any port in range")

	// ErrServiceUnavailable means a call was attempted while no broker
	// endpoint is known; no network request was made.
	ErrServiceUnavailable = errors.New("omnikey broker unavailable")

	// ErrProxyRelay means the broker itself failed to perform a forwarded
	// call. Distinct from the upstream rejecting the call, which is a
	// successful relay reported through ProxyResult.
	ErrProxyRelay = errors.New("broker failed to relay request")

	// ErrInvalidPort rejects an explicitly supplied port outside the
	// discovery range.
	ErrInvalidPort = errors.New("port outside the discovery range")
)
