// Package loader fetches and decodes the images of a study.
//
// Loader turns a URL into a decoded image: it consults an in-memory memo of
// decoded images, then the persistent cache, then the network, and it
// enforces a per-attempt timeout. Progressive builds on Loader to stream
// several quality tiers of one logical image, delivering each tier as soon
// as it is decoded.
//
// # Failure Semantics
//
// A failure on any tier above the lowest is logged and skipped. A failure
// on the lowest tier is terminal for that image and is returned from
// Handle.Wait, wrapping ErrLoadTimeout, ErrFetchFailed or ErrDecodeFailure.
//
// # Cancellation
//
// Handle.Cancel guarantees that no tier callback runs after it returns.
package loader
