// Package httputil fetches remote resources for the image loader.
//
// [Client] wraps net/http with [Retry] for transient failures (network
// errors, 5xx and 429 responses) and reports every request through the
// observability HTTP hooks. [Cache] keeps small JSON records, such as
// resolved image dimensions, on disk so repeated renders skip the network.
package httputil
