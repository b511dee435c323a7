// Package profiles stores profile documents and implements the save, fetch
// and delete workflows on top of storage, the cache and image relocation.
package profiles

import (
	"maps"
	"strings"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/storage"
)

// Document maps field names to values for one user's profile. A missing
// key means the field is unset; empty values are never persisted.
type Document map[string]string

// Clone returns a copy of d that shares nothing with it.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	return maps.Clone(d)
}

// Key identifies one document.
type Key struct {
	Template    string
	CommunityID string
	UserID      string
}

// String is the cache key, "template/community/user".
func (k Key) String() string {
	return k.Template + "/" + k.CommunityID + "/" + k.UserID
}

// ObjectKey is the storage key of the document.
func (k Key) ObjectKey() string {
	return storage.ProfileKey(k.CommunityID, k.Template, k.UserID)
}

func (k Key) validate() error {
	for _, part := range []string{k.Template, k.CommunityID, k.UserID} {
		if strings.TrimSpace(part) == "" {
			return apperr.InvalidArgument("template, community and user are required")
		}
		if strings.Contains(part, "/") {
			return apperr.InvalidArgument("profile key parts may not contain '/'")
		}
	}
	return nil
}
