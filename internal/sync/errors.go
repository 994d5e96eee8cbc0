package sync

import "fmt"

// ConflictExhaustedError reports that the remote range kept changing
// between successive reads until the retry budget was spent. The commit
// wrote nothing; the caller should retry later.
type ConflictExhaustedError struct {
	// Key is the collection whose commit was abandoned.
	Key string

	// Attempts is the number of verification attempts made.
	Attempts int
}

func (e *ConflictExhaustedError) Error() string {
	return fmt.Sprintf("sync of collection %q abandoned after %d attempts: remote changed on every read", e.Key, e.Attempts)
}
