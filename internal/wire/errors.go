// Package wire implements the DNS message codec: parsing, name-compressed
// rendering, EDNS OPT handling, and TSIG signing/verification.
//
// Standards Compliance:
//
//   - RFC 1035: Domain Names - Implementation and Specification
//   - RFC 1034: Domain Names - Concepts and Facilities
//   - RFC 3596: DNS Extensions to Support IPv6 (AAAA records)
//   - RFC 6891: Extension Mechanisms for DNS (EDNS, OPT records)
//   - RFC 8945: Secret Key Transaction Authentication for DNS (TSIG)
//
// Record types are represented as an interface (Record) implemented by
// IPRecord, NameRecord, and OpaqueRecord, rather than a single generic
// struct, so that marshaling and header access stay type-safe.
package wire

import "errors"

// ErrDNSError is a sentinel for DNS wire protocol violations. Wrap it with
// fmt.Errorf("context: %w", ErrDNSError) to add detail.
var ErrDNSError = errors.New("dns wire error")

// ErrUseTCP signals that a rendered message exceeded the UDP size limit and
// must be re-rendered for TCP delivery instead.
var ErrUseTCP = errors.New("dns wire: message too large for UDP, use TCP")

// ErrFormErr signals a wire buffer smaller than a DNS header, or a rendered
// message larger than the 65535-byte DNS maximum.
var ErrFormErr = errors.New("dns wire: malformed message")
