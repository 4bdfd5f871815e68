// Package record defines the test-record body format shared by the load
// generator and the integrity verifier. Keeping the format and the parser in
// one place means there is exactly one definition of what counts as a match.
package record

import (
	"fmt"
	"regexp"
	"time"
)

// SourcePrefix tags datagrams emitted by load workers.
const SourcePrefix = "WORKER_"

// pattern matches the traceable portion of a record body: a zero-padded
// worker id and sequence number. Surrounding text (timestamps, server-side
// decoration) is deliberately not anchored so records survive reformatting
// by the collection service.
var pattern = regexp.MustCompile(`Test message (\d{3})-(\d{5})`)

// Source returns the sender tag for a worker.
func Source(workerID int) string {
	return fmt.Sprintf("%s%d", SourcePrefix, workerID)
}

// Body builds one record body for a worker/sequence pair. The timestamp is
// encoded as unix seconds with microsecond precision.
func Body(workerID, seq int, t time.Time) string {
	return fmt.Sprintf("Test message %03d-%05d at %d.%06d", workerID, seq, t.Unix(), t.Nanosecond()/1000)
}

// Parse extracts the (worker, sequence) pair from one artifact line. The
// second return is false for structural lines, foreign log traffic, or
// anything else that does not carry a test record.
func Parse(line string) (workerID, seq int, ok bool) {
	m := pattern.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	// The subgroups are all-digit by construction, Sscanf cannot fail here.
	if _, err := fmt.Sscanf(m[1], "%d", &workerID); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(m[2], "%d", &seq); err != nil {
		return 0, 0, false
	}
	return workerID, seq, true
}
