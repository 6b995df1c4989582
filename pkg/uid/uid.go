// Package uid makes the ids of program loads and remote clients.
// Ids are UUIDv7 and start with their creation time in milliseconds.
package uid

import "github.com/gofrs/uuid"

type ID string

const Empty ID = ""

func New() ID { return ID(uuid.Must(uuid.NewV7()).String()) }

// Valid accepts only ids made by New.
func Valid(id ID) bool {
	u, err := uuid.FromString(string(id))
	return err == nil && u.Version() == uuid.V7
}

func (id ID) String() string { return string(id) }

// Short is the random tail of the id, enough to tell peers apart in logs.
func (id ID) Short() string {
	if len(id) < 8 {
		return string(id)
	}
	return string(id)[len(id)-8:]
}
