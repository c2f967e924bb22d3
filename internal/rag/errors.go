package rag

import "errors"

var (
	// ErrCollectionNotFound is returned when a query targets a collection
	// that does not exist or holds no records.
	ErrCollectionNotFound = errors.New("rag: collection not found")

	// ErrNothingToIndex is returned by Rebuild for an empty chunk sequence.
	// Storage is left untouched in that case.
	ErrNothingToIndex = errors.New("rag: nothing to index")

	// ErrEmbedding wraps failures of the embedding model, including vector
	// count and dimension mismatches.
	ErrEmbedding = errors.New("rag: embedding failed")

	// ErrStorageWipe is returned when the previous collection storage could
	// not be removed.
	ErrStorageWipe = errors.New("rag: storage wipe failed")
)
