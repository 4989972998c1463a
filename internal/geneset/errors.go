package geneset

import "errors"

// Error taxonomy shared by every pipeline stage. Stages wrap these with context;
// callers match with errors.Is.
var (
	// ErrInvalidInput reports malformed or insufficient input data.
	ErrInvalidInput = errors.New("enrichnet: invalid input")

	// ErrMissingMetadata reports an edge endpoint with no gene-set metadata.
	ErrMissingMetadata = errors.New("enrichnet: missing gene-set metadata")

	// ErrEmptyGraph reports a similarity graph without nodes.
	ErrEmptyGraph = errors.New("enrichnet: empty graph")

	// ErrEmptyCluster reports a cluster none of whose members could be resolved.
	ErrEmptyCluster = errors.New("enrichnet: empty cluster")

	// ErrUnknownField reports an unsupported text field.
	ErrUnknownField = errors.New("enrichnet: unknown text field")
)
