// Package sanitize removes identifying tokens from log text.
//
// Two pattern sets are provided:
//   - LogPatterns: IPv4 addresses and onion hostnames. Applied to every line
//     the daemon itself logs.
//   - DefaultPatterns: LogPatterns plus script paths and identifying HTTP
//     headers (User-Agent, Referer, Cookie, Authorization). Applied by the
//     sanitize subcommand to existing log files such as web server logs.
//
// Files are rewritten by writing a sibling temporary file and renaming it
// over the original, so readers never observe a partially written file.
package sanitize
