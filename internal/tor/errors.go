package tor

import "errors"

var (
	// ErrConnect is returned when the control port cannot be reached or
	// authentication fails.
	ErrConnect = errors.New("cannot connect to Tor control port")

	// ErrConnectionLost is returned by SubscribeCircuits when a poll of an
	// established connection fails.
	ErrConnectionLost = errors.New("control connection lost")

	// ErrNotRunning is returned when the embedded daemon is used before Start.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")

	// ErrInvalidOnionAddress is returned when an address is not a valid v3 onion address.
	ErrInvalidOnionAddress = errors.New("invalid onion address")
)

// ProxyStatus is the result of probing a SOCKS port.
type ProxyStatus int

const (
	// ProxyStatusOK indicates a working SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates something other than an
	// unauthenticated SOCKS5 proxy answered.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates the TCP connection failed.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the probe ran out of time.
	ProxyStatusTimeout
)

// String returns a short description of the status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}
