// Package fetch performs HTTP downloads with a bounded retry policy.
//
// All three network call sites in the program (the Chrome version feed,
// the Firefox addon API, and the package downloads themselves) go through
// a single Client so they share one policy: up to 3 attempts, exponential
// backoff doubling from 1 second, and an optional flat rate-limit delay
// for endpoints that answer 429.
//
// Transport-level failures (connection refused, timeout, DNS) are
// retried; HTTP status errors are not, except 429 when the caller opts
// in. Response bodies are read in fixed-size chunks so callers can
// observe byte-level progress through a callback.
package fetch
