// Package id provides utilities for generating URL-safe identifiers.
//
// Identifiers are UUIDv4 values encoded as base32 (RFC 4648) with no padding.
// The resulting strings are 26 characters long, lowercase, and safe for use in
// URLs, file paths and trigger references typed by operators.
package id
