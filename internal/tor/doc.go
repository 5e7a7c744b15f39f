// Package tor talks to the local Tor daemon.
//
// It provides:
//   - a control channel (Dialer / Conn) backed by tornago's ControlClient,
//     with cookie or password authentication
//   - DialWithRetry for the monitoring connection
//   - SubscribeCircuits, which turns periodic circuit-status reads into
//     "circuit built" callbacks
//   - ProbeSOCKS and DialOnion for checking the SOCKS port
//   - onion address validation
//   - EmbeddedTor, a private Tor daemon for development
//
// Design decision: consumers depend on the Dialer and Conn interfaces, not
// on tornago types, so the defense and privacy packages are tested against
// in-memory fakes.
package tor
