package model

import "time"

type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
)

// RemoteEntry is one item of a remote directory listing.
type RemoteEntry struct {
	Name        string     `json:"name"`
	Type        EntryType  `json:"type"`
	Size        int64      `json:"size"`
	ModTime     *time.Time `json:"modified_time,omitempty"`
	Permissions string     `json:"permissions,omitempty"`
}

func (e RemoteEntry) IsDir() bool {
	return e.Type == EntryDirectory
}
