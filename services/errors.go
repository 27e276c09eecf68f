package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"groupdrive/journal"
)

// Sentinel errors. Wrap them with fmt.Errorf("...: %w") and match with errors.Is.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrDuplicateName      = errors.New("an item with this name already exists")
	ErrFolderNotEmpty     = errors.New("folder is not empty")
	ErrNodeNotFound       = errors.New("item not found")
	ErrObjectStore        = errors.New("object store operation failed")
	ErrParentTrashed      = errors.New("parent folder no longer exists or is in trash")
	ErrForbidden          = errors.New("operation not permitted")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPartialPropagation = errors.New("propagation partially applied")
)

// PartialPropagationError reports a propagation that stopped partway. Batches
// committed before the failure stay applied; re-running the same mutation
// finishes the job.
type PartialPropagationError struct {
	RootID     primitive.ObjectID
	Kind       journal.Kind
	JournalID  string
	Updated    int
	Discovered int
	// FailedIDs are the nodes staged in the batch that did not commit.
	FailedIDs []primitive.ObjectID
	// Directory is set when a child query, not a commit, failed.
	Directory string
	Err       error
}

func (e *PartialPropagationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s propagation from %s stopped after %d of %d nodes", e.Kind, e.RootID.Hex(), e.Updated, e.Discovered)
	if len(e.FailedIDs) > 0 {
		fmt.Fprintf(&b, " (%d nodes in failed batch, first %s)", len(e.FailedIDs), e.FailedIDs[0].Hex())
	}
	if e.Directory != "" {
		fmt.Fprintf(&b, " (listing %s)", e.Directory)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *PartialPropagationError) Unwrap() error { return e.Err }

func (e *PartialPropagationError) Is(target error) bool {
	return target == ErrPartialPropagation
}

// ObjectStoreError wraps a failed blob operation.
type ObjectStoreError struct {
	Op  string
	Key string
	Err error
}

func (e *ObjectStoreError) Error() string {
	return fmt.Sprintf("object store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectStoreError) Unwrap() error { return e.Err }

func (e *ObjectStoreError) Is(target error) bool {
	return target == ErrObjectStore
}

// StatusCode maps a service error to the HTTP status the controllers send.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrFolderNotEmpty),
		errors.Is(err, ErrParentTrashed):
		return http.StatusConflict
	case errors.Is(err, ErrObjectStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
