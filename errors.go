package stackview

import (
	"errors"

	"github.com/gogpu/stackview/cache"
	"github.com/gogpu/stackview/loader"
	"github.com/gogpu/stackview/telemetry"
)

// Errors reported by the viewer. The aliased values are the ones returned
// by the sub-packages, so errors.Is works on either name.
var (
	// ErrLoadTimeout is returned when an image does not arrive in time.
	ErrLoadTimeout = loader.ErrLoadTimeout

	// ErrDecodeFailure is returned for bytes that are not a supported image.
	ErrDecodeFailure = loader.ErrDecodeFailure

	// ErrFetchFailed is returned when a source answers with an error.
	ErrFetchFailed = loader.ErrFetchFailed

	// ErrStorageQuotaExceeded is returned when the cache backend is full
	// even after an aggressive eviction.
	ErrStorageQuotaExceeded = cache.ErrQuotaExceeded

	// ErrStorageUnavailable is returned when the cache backend fails.
	ErrStorageUnavailable = cache.ErrUnavailable

	// ErrSensorUnavailable is returned by telemetry sensors that cannot
	// measure on this platform.
	ErrSensorUnavailable = telemetry.ErrSensorUnavailable

	// ErrEmptyStudy is returned by Open for a study without images.
	ErrEmptyStudy = errors.New("stackview: study has no images")

	// ErrIndexOutOfRange is returned when navigating past the study.
	ErrIndexOutOfRange = errors.New("stackview: index out of range")

	// ErrClosed is returned by a viewer after Close.
	ErrClosed = errors.New("stackview: viewer closed")
)
