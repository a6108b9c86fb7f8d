// Package identity generates the opaque, sortable string ids used for every
// persisted entity except events (which use a plain SQL auto-increment).
package identity

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// newULID returns a lexicographically sortable, monotonic-within-process ULID.
func newULID() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewChannelID returns a new channel id, prefixed "ch_".
func NewChannelID() string { return "ch_" + newULID() }

// NewTopicID returns a new topic id, prefixed "tp_".
func NewTopicID() string { return "tp_" + newULID() }

// NewMessageID returns a new message id, prefixed "msg_".
// Message ids are lexically ordered by creation time, which is the
// monotonic sortable id the store relies on for cursor pagination.
func NewMessageID() string { return "msg_" + newULID() }

// NewAttachmentID returns a new attachment id, prefixed "att_".
func NewAttachmentID() string { return "att_" + newULID() }

// NewEnrichmentID returns a new enrichment id, prefixed "enr_".
func NewEnrichmentID() string { return "enr_" + newULID() }

// NewDBID returns a new database identity, prefixed "db_". Assigned once,
// at first initialization, and stored in the meta table.
func NewDBID() string { return "db_" + newULID() }

// NewInstanceID returns a new daemon instance identity, prefixed "inst_".
// Generated once per process start; never persisted.
func NewInstanceID() string { return "inst_" + newULID() }

// ParseULID extracts the creation time embedded in one of the ids above.
// The id's kind prefix (e.g. "msg_") must already be stripped by the caller.
func ParseULID(s string) (time.Time, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}
