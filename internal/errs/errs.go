package errs

import "errors"

// Domain sentinel errors, mapped to HTTP status codes in handlers.
var (
	ErrStreamNotFound      = errors.New("stream not found")
	ErrMediaNotFound       = errors.New("media item not found")
	ErrIngestNotConfigured = errors.New("ingest target not configured")
	ErrVisionNotConfigured = errors.New("vision credentials not configured")
	ErrSourceClosed        = errors.New("frame source closed")
	ErrUnsupportedMedia    = errors.New("unsupported media type")
)
