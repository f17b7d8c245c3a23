package models

import "time"

// Versioned adds optimistic‑lock helpers. Embed it anonymously.
type Versioned struct {
	RowVersion int64 `json:"row_version"`
}

func (v *Versioned) GetRowVersion() int64  { return v.RowVersion }
func (v *Versioned) SetRowVersion(n int64) { v.RowVersion = n }

/*
Revision is the optimistic-concurrency token of a job. Two revisions are
equal only when both the counter and the timestamp match.
*/
type Revision struct {
	RowVersion int64     `json:"row_version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (r Revision) Equal(o Revision) bool {
	return r.RowVersion == o.RowVersion && r.UpdatedAt.Equal(o.UpdatedAt)
}
