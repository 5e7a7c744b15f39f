// Package privacy periodically audits the privacy posture of the Tor
// instance and the onion service it publishes.
//
// Each audit opens one control connection (no retry), reads the Tor
// version and checks that SafeLogging is not disabled. When a hidden
// service directory is configured the hostname file is validated, the
// public key is checked against it and the directory must not lie inside
// the web root. The SOCKS port is probed, and the onion service can
// optionally be dialed through it. Results are logged and passed to
// observers; a failed check never stops the daemon.
package privacy
