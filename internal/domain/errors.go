package domain

import "errors"

var (
	// ErrProviderUnavailable means the embedding or generation backend is
	// unreachable or out of quota. Terminal for the current request.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrItemRejected means a single chunk or record could not be processed.
	ErrItemRejected = errors.New("item rejected")
	// ErrStoreUnavailable means the persistence backend failed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMalformedRecord means a stored embedding could not be parsed or has
	// the wrong dimension.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrSimilarityUnsupported is returned by stores without a server-side
	// similarity search.
	ErrSimilarityUnsupported = errors.New("similarity search unsupported")
)
