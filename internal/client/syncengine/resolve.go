package syncengine

import "github.com/dmitrijs2005/journalkeeper/internal/client/models"

// Decision is the outcome of merging one downloaded entry.
type Decision int

const (
	// Insert: no local copy exists.
	Insert Decision = iota
	// ApplyRemote: the local copy is not newer; the server copy replaces it.
	ApplyRemote
	// KeepLocal: the local copy is strictly newer. It is kept, flagged as a
	// conflict and uploaded again.
	KeepLocal
)

func (d Decision) String() string {
	switch d {
	case Insert:
		return "insert"
	case ApplyRemote:
		return "apply_remote"
	case KeepLocal:
		return "keep_local"
	default:
		return "unknown"
	}
}

// Resolve decides how remote merges into local. local may be nil. Equal
// timestamps resolve to the server copy.
func Resolve(local, remote *models.Entry) Decision {
	if local == nil {
		return Insert
	}
	if local.UpdatedAt.After(remote.UpdatedAt) {
		return KeepLocal
	}
	return ApplyRemote
}
