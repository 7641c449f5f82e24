package atlas

import (
	"fmt"

	"github.com/Faultbox/midgard-terrain/pkg/node"
)

// LoadError reports a failed node load. The slot went back to Unloaded.
type LoadError struct {
	Attachment string
	ID         node.NodeID
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s node %s: %v", e.Attachment, e.ID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ArtifactMissingError reports a node without a preprocessed artifact.
type ArtifactMissingError struct {
	Attachment string
	ID         node.NodeID
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("no artifact for %s node %s", e.Attachment, e.ID)
}
