// Package clientip extracts the real client IP address from HTTP requests.
//
// The address is the default caller identity for rate limiting, so the
// extraction chain mirrors common proxy deployments, checked in order:
//  1. X-Forwarded-For (leftmost entry, the original client)
//  2. X-Real-IP (nginx and other reverse proxies)
//  3. RemoteAddr (direct connection)
//
// Every candidate is parsed with net.ParseIP and normalized; malformed
// header values are skipped. When nothing yields a valid address the
// function falls back to the raw RemoteAddr, and as a last resort to
// the constant "unknown" so every request still lands in some bucket.
package clientip
