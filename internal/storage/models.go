package storage

import (
	"time"
)

type Photo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	RemoteURL string    `json:"remote_url,omitempty"`
	DateTaken time.Time `json:"date_taken"`
	Views     uint64    `json:"views"`
	Favorite  bool      `json:"favorite"`
	Tags      []string  `json:"-"`
}

// HasRemoteURL reports whether the photo can be downloaded.
func (p *Photo) HasRemoteURL() bool {
	return p.RemoteURL != ""
}

type Tag struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	PhotoIDs  []string  `json:"-"`
}

// ParsedPhoto is a listing entry as decoded from the remote API, before it
// has been merged into the store.
type ParsedPhoto struct {
	ID        string
	Title     string
	RemoteURL string
	DateTaken time.Time
	Tags      []string
}
