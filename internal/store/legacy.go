package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/lifecycle"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

// Exported documents used several spellings for the same field. First match wins.
var (
	legacyIDKeys         = []string{"id", "jobId", "job_id"}
	legacyStatusKeys     = []string{"status", "jobStatus", "state"}
	legacyAssigneeKeys   = []string{"assignedStaffId", "assigned_staff_id", "assignedTo", "staffId"}
	legacyRoleKeys       = []string{"requiredRole", "required_role", "requiredStaffRole", "role", "staffType"}
	legacyJobTypeKeys    = []string{"jobType", "type", "category"}
	legacyPropertyKeys   = []string{"propertyId", "property_id", "propertyRef", "villaId"}
	legacyTitleKeys      = []string{"title", "jobTitle", "name", "description"}
	legacyScheduledKeys  = []string{"scheduledAt", "scheduled_at", "scheduledDate", "scheduledFor", "date"}
	legacyCreatedKeys    = []string{"createdAt", "created_at"}
	legacyUpdatedKeys    = []string{"updatedAt", "updated_at", "lastUpdated"}
	legacyCompletionKeys = []string{"completionRecord", "completion_record", "completionData", "completion"}
	legacyReasonKeys     = []string{"cancelReason", "cancellationReason", "rejectionReason"}
	legacyNotesKeys      = []string{"notes", "completionNotes"}
	legacyEvidenceKeys   = []string{"evidenceRefs", "photos", "completionPhotos", "photoUrls"}
	legacyDurationKeys   = []string{"actualDuration", "actualDurationMinutes", "duration"}
)

var legacyStatuses = map[string]models.JobStatus{
	"pending":     models.JobStatusPending,
	"open":        models.JobStatusPending,
	"offered":     models.JobStatusOffered,
	"assigned":    models.JobStatusAssigned,
	"accepted":    models.JobStatusAccepted,
	"in_progress": models.JobStatusInProgress,
	"in-progress": models.JobStatusInProgress,
	"inprogress":  models.JobStatusInProgress,
	"started":     models.JobStatusInProgress,
	"completed":   models.JobStatusCompleted,
	"complete":    models.JobStatusCompleted,
	"done":        models.JobStatusCompleted,
	"cancelled":   models.JobStatusCancelled,
	"canceled":    models.JobStatusCancelled,
}

var legacyJobTypes = map[string]models.RoleTag{
	"cleaning":     models.RoleCleaner,
	"cleaner":      models.RoleCleaner,
	"housekeeping": models.RoleCleaner,
	"maintenance":  models.RoleMaintenance,
	"repair":       models.RoleMaintenance,
	"pool":         models.RoleMaintenance,
	"garden":       models.RoleMaintenance,
}

/*
FromLegacyDocument translates one exported document into the canonical Job.
origin says which collection it came from. The result satisfies the
lifecycle invariant or an ErrInvalidPayload error is returned.
*/
func FromLegacyDocument(doc map[string]any, origin models.JobOrigin, now time.Time) (*models.Job, error) {
	j := &models.Job{Origin: origin}

	j.ID = firstString(doc, legacyIDKeys)
	if j.ID == "" {
		return nil, fmt.Errorf("%w: document has no id", utils.ErrInvalidPayload)
	}
	j.PropertyID = firstString(doc, legacyPropertyKeys)
	j.Title = firstString(doc, legacyTitleKeys)

	if assignee := firstString(doc, legacyAssigneeKeys); assignee != "" {
		j.AssignedStaffID = &assignee
	}

	rawStatus := strings.ToLower(strings.TrimSpace(firstString(doc, legacyStatusKeys)))
	switch {
	case rawStatus != "":
		st, ok := legacyStatuses[rawStatus]
		if !ok {
			return nil, fmt.Errorf("%w: job %s has unknown status %q", utils.ErrInvalidPayload, j.ID, rawStatus)
		}
		j.Status = st
	case doc["isActive"] == false:
		j.Status = models.JobStatusCancelled
	default:
		j.Status = models.JobStatusPending
	}
	// The old app left jobs "pending" after an admin picked a staff member.
	if j.Status == models.JobStatusPending && j.AssignedStaffID != nil {
		j.Status = models.JobStatusAssigned
	}
	if !j.Status.RequiresAssignee() {
		j.AssignedStaffID = nil
	}

	role := strings.ToLower(firstString(doc, legacyRoleKeys))
	if role == "" {
		role = string(legacyJobTypes[strings.ToLower(firstString(doc, legacyJobTypeKeys))])
	}
	if role == "" {
		return nil, fmt.Errorf("%w: job %s has no role or job type", utils.ErrInvalidPayload, j.ID)
	}
	if mapped, ok := legacyJobTypes[role]; ok {
		role = string(mapped)
	}
	j.RequiredRole = models.RoleTag(role)

	var err error
	if j.ScheduledAt, err = firstTime(doc, legacyScheduledKeys, time.Time{}); err != nil {
		return nil, fmt.Errorf("%w: job %s scheduled time: %v", utils.ErrInvalidPayload, j.ID, err)
	}
	if j.CreatedAt, err = firstTime(doc, legacyCreatedKeys, now); err != nil {
		return nil, fmt.Errorf("%w: job %s created time: %v", utils.ErrInvalidPayload, j.ID, err)
	}
	if j.UpdatedAt, err = firstTime(doc, legacyUpdatedKeys, j.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: job %s updated time: %v", utils.ErrInvalidPayload, j.ID, err)
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = j.CreatedAt
	}

	if j.Status == models.JobStatusCancelled {
		reason := firstString(doc, legacyReasonKeys)
		j.CancelReason = &reason
	}
	if j.Status == models.JobStatusCompleted {
		j.Completion = legacyCompletion(doc)
	}

	if err := lifecycle.CheckInvariant(*j); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidPayload, err)
	}
	return j, nil
}

/*
ParseLegacyExport accepts either a bare array of job documents or an
object holding the native `jobs` and web-app `webappJobs` collections.
Documents that cannot be translated are returned in skipped.
*/
func ParseLegacyExport(data []byte, now time.Time) (jobs []*models.Job, skipped []error, err error) {
	var collections map[string][]map[string]any
	var bare []map[string]any

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &bare); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", utils.ErrInvalidPayload, err)
		}
		collections = map[string][]map[string]any{"jobs": bare}
	} else if err := json.Unmarshal(data, &collections); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", utils.ErrInvalidPayload, err)
	}

	for _, name := range []string{"jobs", "webappJobs", "webapp_jobs"} {
		origin := models.JobOriginNative
		if name != "jobs" {
			origin = models.JobOriginWebApp
		}
		for i, doc := range collections[name] {
			j, err := FromLegacyDocument(doc, origin, now)
			if err != nil {
				skipped = append(skipped, fmt.Errorf("%s[%d]: %w", name, i, err))
				continue
			}
			jobs = append(jobs, j)
		}
	}
	return jobs, skipped, nil
}

func legacyCompletion(doc map[string]any) *models.CompletionRecord {
	rec := &models.CompletionRecord{}
	src := doc
	for _, k := range legacyCompletionKeys {
		if m, ok := doc[k].(map[string]any); ok {
			src = m
			if b, err := json.Marshal(m); err == nil {
				rec.Extra = b
			}
			break
		}
	}
	rec.Notes = firstString(src, legacyNotesKeys)
	for _, k := range legacyEvidenceKeys {
		if arr, ok := src[k].([]any); ok {
			for _, v := range arr {
				if s, ok := v.(string); ok && s != "" {
					rec.EvidenceRefs = append(rec.EvidenceRefs, s)
				}
			}
			break
		}
	}
	for _, k := range legacyDurationKeys {
		if n, ok := src[k].(float64); ok {
			rec.ActualDuration = int64(n)
			break
		}
	}
	return rec
}

func firstString(doc map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := doc[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstTime(doc map[string]any, keys []string, fallback time.Time) (time.Time, error) {
	for _, k := range keys {
		v, ok := doc[k]
		if !ok || v == nil {
			continue
		}
		t, err := legacyTime(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", k, err)
		}
		return t.UTC().Truncate(time.Microsecond), nil
	}
	return fallback, nil
}

// legacyTime understands RFC3339 strings, epoch milliseconds and exported
// timestamp objects ({"_seconds": .., "_nanoseconds": ..}).
func legacyTime(v any) (time.Time, error) {
	switch tv := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, tv); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02", tv)
	case float64:
		return time.UnixMilli(int64(tv)), nil
	case map[string]any:
		secs, ok := tv["_seconds"].(float64)
		if !ok {
			secs, ok = tv["seconds"].(float64)
		}
		if !ok {
			return time.Time{}, fmt.Errorf("timestamp object without seconds")
		}
		nanos, _ := tv["_nanoseconds"].(float64)
		if nanos == 0 {
			nanos, _ = tv["nanoseconds"].(float64)
		}
		return time.Unix(int64(secs), int64(nanos)), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}
