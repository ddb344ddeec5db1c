// Package layout maps documents, clients and parts onto store paths.
//
// The layout is fixed and shared by every store:
//
//	documents/document-<documentID>/master-index.json
//	documents/document-<documentID>/client-<clientID>/client-index.json
//	documents/document-<documentID>/client-<clientID>/part-00000000.json
//
// Paths are case-sensitive and '/'-joined when flattened into keys.
package layout

import (
	"fmt"
	"strings"
)

// Fixed file names.
const (
	MasterIndexFile = "master-index.json"
	ClientIndexFile = "client-index.json"
)

const (
	rootSegment     = "documents"
	documentPrefix  = "document-"
	clientPrefix    = "client-"
	partFilePattern = "part-%08d.json"
)

// PathFor returns the path segments for a document, or for one of its
// clients when clientID is non-empty.
func PathFor(documentID, clientID string) []string {
	path := []string{rootSegment, documentPrefix + documentID}
	if clientID != "" {
		path = append(path, clientPrefix+clientID)
	}
	return path
}

// DocumentPath returns the directory holding a document's master index.
func DocumentPath(documentID string) []string {
	return PathFor(documentID, "")
}

// ClientPath returns the directory holding a client's index and parts.
func ClientPath(documentID, clientID string) []string {
	return PathFor(documentID, clientID)
}

// PartFile returns the file name of the part with the given id.
func PartFile(id int) string {
	return fmt.Sprintf(partFilePattern, id)
}

// Join flattens path segments and a file name into a '/'-joined key.
func Join(path []string, name string) string {
	if len(path) == 0 {
		return name
	}
	if name == "" {
		return strings.Join(path, "/")
	}
	return strings.Join(path, "/") + "/" + name
}

// Split is the inverse of Join: the last segment is the file name.
func Split(key string) ([]string, string) {
	key = strings.Trim(key, "/")
	if key == "" {
		return nil, ""
	}
	segments := strings.Split(key, "/")
	return segments[:len(segments)-1], segments[len(segments)-1]
}
