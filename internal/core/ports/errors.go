package ports

import "errors"

var (
	// ErrBlobNotFound is returned by BlobStore.Get for a name that was never written.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrMalformedResponse marks a remote payload that does not have the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
)
