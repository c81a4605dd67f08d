package errors

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid")
	ErrInternal    = errors.New("internal")
	ErrUnavailable = errors.New("service not configured")

	// Remote-call failures. Callers wrap the cause with one of these so
	// the failing stage can be checked with errors.Is.
	ErrEmbeddingService = errors.New("embedding service error")
	ErrStorage          = errors.New("storage error")
	ErrFetch            = errors.New("fetch error")
	ErrIngestion        = errors.New("ingestion error")
	ErrSearchAPI        = errors.New("search api error")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IngestionError tags a failed document ingestion with the document title.
type IngestionError struct {
	Title string
	Err   error
}

func (e *IngestionError) Error() string {
	if e.Err == nil {
		return "failed to ingest document: " + e.Title
	}
	return "failed to ingest document: " + e.Title + ": " + e.Err.Error()
}

func (e *IngestionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrIngestion}
	}
	return []error{ErrIngestion, e.Err}
}
