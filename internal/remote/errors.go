package remote

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// SyncError reports a protocol-level failure: something the stores
// returned cannot be turned into a document.
type SyncError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// DocumentID identifies the affected document, when known.
	DocumentID string

	// ClientID identifies the affected client, when known.
	ClientID string

	// URL is the location that could not be resolved, when relevant.
	URL string
}

// ErrorCode categorizes sync errors.
type ErrorCode string

const (
	// ErrCodeNoCompatibleStore indicates no candidate store can resolve a URL.
	ErrCodeNoCompatibleStore ErrorCode = "NO_COMPATIBLE_STORE"

	// ErrCodeNoUsableParts indicates a client's history had no readable part.
	ErrCodeNoUsableParts ErrorCode = "NO_USABLE_PARTS"

	// ErrCodeNoMasterIndex indicates the document has never been saved.
	ErrCodeNoMasterIndex ErrorCode = "NO_MASTER_INDEX"

	// ErrCodeUnknownClient indicates a client missing from a master index.
	ErrCodeUnknownClient ErrorCode = "UNKNOWN_CLIENT"

	// ErrCodeNoClientIndex indicates a listed client has no client index.
	ErrCodeNoClientIndex ErrorCode = "NO_CLIENT_INDEX"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	switch {
	case e.URL != "":
		return fmt.Sprintf("%s: %s (url=%s)", e.Code, e.Message, e.URL)
	case e.DocumentID != "" && e.ClientID != "":
		return fmt.Sprintf("%s: %s (document=%s, client=%s)", e.Code, e.Message, e.DocumentID, e.ClientID)
	case e.DocumentID != "":
		return fmt.Sprintf("%s: %s (document=%s)", e.Code, e.Message, e.DocumentID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasCode returns true if err is or wraps a SyncError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsNoCompatibleStore returns true if no store could resolve a URL.
func IsNoCompatibleStore(err error) bool {
	return HasCode(err, ErrCodeNoCompatibleStore)
}

// IsNoMasterIndex returns true if the document was never saved.
func IsNoMasterIndex(err error) bool {
	return HasCode(err, ErrCodeNoMasterIndex)
}

func newNoCompatibleStoreError(url string) *SyncError {
	return &SyncError{
		Code:    ErrCodeNoCompatibleStore,
		Message: "no store can download url",
		URL:     url,
	}
}

func newNoUsablePartsError(documentID, clientID string) *SyncError {
	return &SyncError{
		Code:       ErrCodeNoUsableParts,
		Message:    "client history has no usable parts",
		DocumentID: documentID,
		ClientID:   clientID,
	}
}

func newNoMasterIndexError(documentID string) *SyncError {
	return &SyncError{
		Code:       ErrCodeNoMasterIndex,
		Message:    "master index not found",
		DocumentID: documentID,
	}
}

func newUnknownClientError(documentID, clientID string) *SyncError {
	return &SyncError{
		Code:       ErrCodeUnknownClient,
		Message:    "client not listed in master index",
		DocumentID: documentID,
		ClientID:   clientID,
	}
}

func newNoClientIndexError(documentID, clientID string) *SyncError {
	return &SyncError{
		Code:       ErrCodeNoClientIndex,
		Message:    "client index not found",
		DocumentID: documentID,
		ClientID:   clientID,
	}
}
