package core

import "fmt"

// ErrDuplicateReference indicates that DetectRun was called for an
// (image, container) pair that is already active. This is a
// collaborator bookkeeping bug (double-start or reused container id);
// the ledger is left unchanged.
type ErrDuplicateReference struct {
	ImageID     string
	ContainerID string
}

func (e *ErrDuplicateReference) Error() string {
	return fmt.Sprintf("container %s already references image %s", e.ContainerID, e.ImageID)
}

// ErrUnknownReference indicates that DetectStop was called for an
// (image, container) pair with no active reference (double-stop or
// mismatched ids). The ledger is left unchanged.
type ErrUnknownReference struct {
	ImageID     string
	ContainerID string
}

func (e *ErrUnknownReference) Error() string {
	return fmt.Sprintf("no active reference from container %s to image %s", e.ContainerID, e.ImageID)
}

// ErrImageInUse indicates that Forget was called for an image that
// still has active container references. Forgetting an in-use image
// would desynchronise the ledger from the runtime, so the call is
// refused instead of silently correcting state.
type ErrImageInUse struct {
	ImageID string
	Refs    int
}

func (e *ErrImageInUse) Error() string {
	return fmt.Sprintf("image %s still referenced by %d container(s)", e.ImageID, e.Refs)
}

// ErrInvalidInput indicates a domain-level input validation failure,
// such as an empty image or container id.
type ErrInvalidInput struct {
	Field   string
	Message string
}

func (e *ErrInvalidInput) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}
