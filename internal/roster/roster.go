package roster

import (
	"context"
	"errors"
)

// ErrUnknownSubject is returned when a subject id does not resolve.
var ErrUnknownSubject = errors.New("unknown subject")

// Profile describes one tracked person. Field names follow the
// persisted userlist format.
type Profile struct {
	ID        string `json:"-"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password,omitempty"`
	Role      string `json:"role,omitempty"`
	CardCode  string `json:"nfc_code,omitempty"`
	Folder    string `json:"folder"`
}

// FullName is the display name used in clock messages and login.
func (p Profile) FullName() string {
	return p.FirstName + " " + p.LastName
}

// IsAdmin reports whether the profile carries the admin role.
func (p Profile) IsAdmin() bool { return p.Role == "admin" }

// Provider is the read-only roster view the core components consume.
type Provider interface {
	List(ctx context.Context) (map[string]Profile, error)
	Get(ctx context.Context, id string) (*Profile, error)
}

// Store persists the roster as a whole, keyed by subject id.
type Store interface {
	Load(ctx context.Context) (map[string]Profile, error)
	Save(ctx context.Context, profiles map[string]Profile) error
}
