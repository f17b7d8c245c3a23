package ledger

import (
	"strconv"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

/*
NotificationKey derives the dedupe key of a NotificationEvent from the
target, job, kind and coalescing window. Repeats of the same kind for the
same staff and job coalesce until the window's TTL runs out.
*/
func NotificationKey(targetStaffID, jobID string, kind models.NotificationKind, window time.Duration) string {
	return "notify:" + utils.HashParts(targetStaffID, jobID, string(kind), strconv.FormatInt(int64(window), 10))
}

// ChangeKey identifies one committed job version for one subscriber.
// row_version is strictly increasing, so two transitions never share a key
// even when their updated_at is equal.
func ChangeKey(subscriberID, jobID string, status models.JobStatus, rev models.Revision) string {
	return "change:" + utils.HashParts(
		subscriberID,
		jobID,
		string(status),
		strconv.FormatInt(rev.RowVersion, 10),
		rev.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
}
