package internal

import "fmt"

// Op identifies a store operation. It names the operation in errors, logs and metrics.
type Op uint8

const (
	OpOpen    Op = iota // Open the engine.
	OpSet               // Insert or update an entry.
	OpSetE              // Insert or update an entry with a ttl.
	OpGet               // Read an entry.
	OpDelete            // Delete an entry.
	OpClear             // Delete all entries.
	OpCompact           // Reclaim space of obsolete entries.
	OpSearch            // Prefix search.
	OpClose             // Release the engine.
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpSet:
		return "set"
	case OpSetE:
		return "setE"
	case OpGet:
		return "get"
	case OpDelete:
		return "delete"
	case OpClear:
		return "clear"
	case OpCompact:
		return "compact"
	case OpSearch:
		return "search"
	case OpClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(%d)", o)
	}
}
