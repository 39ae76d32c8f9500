// Package eventbus implements the in-process publish/subscribe channel of one library.
package eventbus

import "time"

// Lifecycle events published by a library session.
const (
	FileCreated   = "file::created"
	FileUpdated   = "file::updated"
	FileDeleted   = "file::deleted"
	FileRecovered = "file::recovered"
	FileSetTag    = "file::setTag"

	FolderCreated = "folder::created"
	FolderUpdated = "folder::updated"
	FolderDeleted = "folder::deleted"

	TagCreated = "tag::created"
	TagUpdated = "tag::updated"
	TagDeleted = "tag::deleted"

	ThumbCreated = "thumb::created"

	ClientConnected     = "client::connected"
	ClientBeforeConnect = "client::before_connect"

	// LibraryClosing is published once, before a session unloads its plugins.
	LibraryClosing = "library::closing"
)

// All subscribes a handler to every event name.
const All = "*"

// MaxListeners is the per-name listener count above which Subscribe warns.
const MaxListeners = 100

// Event is one delivered notification.
type Event struct {
	Name      string    `json:"event"`
	LibraryID string    `json:"libraryId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// FileDeletedData is the payload of file::deleted.
type FileDeletedData struct {
	ID               int64  `json:"id"`
	Path             string `json:"path"`
	MoveToRecycleBin bool   `json:"moveToRecycleBin"`
}

// FileSetTagData is the payload of file::setTag.
type FileSetTagData struct {
	ID   int64    `json:"id"`
	Tags []string `json:"tags"`
}

// NodesDeletedData is the payload of folder::deleted and tag::deleted.
type NodesDeletedData struct {
	ID      string   `json:"id"`
	Deleted []string `json:"deleted"`
}

// ThumbCreatedData is the payload of thumb::created.
type ThumbCreatedData struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	BlurHash string `json:"blurhash,omitempty"`
}

// ClientData is the payload of client::before_connect and client::connected.
type ClientData struct {
	ClientID string `json:"clientId"`
	Remote   string `json:"remote,omitempty"`
}
