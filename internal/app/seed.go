package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/store"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

const sentinelSeedJobID = "seed-villa-turnover-1"

type seedStaff struct {
	contact models.StaffContact
	caps    []models.RoleTag
}

var testStaff = []seedStaff{
	{models.StaffContact{ID: "staff-cleaner-1", Name: "Test Cleaner", PhoneNumber: "+10005550101", Email: "cleaner1@villa-ops.example"}, []models.RoleTag{models.RoleCleaner}},
	{models.StaffContact{ID: "staff-cleaner-2", Name: "Second Cleaner", PhoneNumber: "+10005550102", Email: "cleaner2@villa-ops.example"}, []models.RoleTag{models.RoleCleaner}},
	{models.StaffContact{ID: "staff-maint-1", Name: "Test Maintenance", PhoneNumber: "+10005550103", Email: "maint1@villa-ops.example"}, []models.RoleTag{models.RoleMaintenance}},
	{models.StaffContact{ID: "staff-admin-1", Name: "Test Admin", Email: "admin@villa-ops.example"}, []models.RoleTag{models.RoleAdmin, models.RoleCleaner, models.RoleMaintenance}},
}

/*
SeedTestData loads a small set of staff and jobs for local runs. It is a no-op
when the sentinel job already exists.
*/
func SeedTestData(ctx context.Context, s store.Store, staff store.StaffRepository) error {
	if _, err := s.GetByID(ctx, sentinelSeedJobID); err == nil {
		utils.Logger.Info("jobsync-service: seed data already present; skipping seeding")
		return nil
	} else if !errors.Is(err, utils.ErrJobNotFound) {
		return fmt.Errorf("check existing seed job: %w", err)
	}

	for _, st := range testStaff {
		c := st.contact
		if err := staff.Upsert(ctx, &c, st.caps); err != nil {
			return fmt.Errorf("seed staff %s: %w", c.ID, err)
		}
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	tomorrow := now.Truncate(24 * time.Hour).Add(24*time.Hour + 10*time.Hour)
	jobs := []*models.Job{
		{ID: sentinelSeedJobID, PropertyID: "villa-01", Title: "Turnover clean", RequiredRole: models.RoleCleaner, Status: models.JobStatusPending, ScheduledAt: tomorrow},
		{ID: "seed-villa-turnover-2", PropertyID: "villa-02", Title: "Linen change", RequiredRole: models.RoleCleaner, Status: models.JobStatusPending, ScheduledAt: tomorrow.Add(2 * time.Hour)},
		{ID: "seed-villa-pool-1", PropertyID: "villa-01", Title: "Pool pump check", RequiredRole: models.RoleMaintenance, Status: models.JobStatusPending, ScheduledAt: tomorrow.Add(time.Hour)},
		{ID: "seed-villa-deep-1", PropertyID: "villa-03", Title: "Deep clean", RequiredRole: models.RoleCleaner, Status: models.JobStatusAssigned, AssignedStaffID: utils.Ptr("staff-cleaner-1"), ScheduledAt: tomorrow.Add(4 * time.Hour)},
	}
	for _, j := range jobs {
		j.Origin = models.JobOriginNative
		j.CreatedAt = now
		j.UpdatedAt = now
		if _, err := s.Create(ctx, j); err != nil && !errors.Is(err, utils.ErrDuplicateJob) {
			return fmt.Errorf("seed job %s: %w", j.ID, err)
		}
	}
	utils.Logger.Infof("jobsync-service: seeded %d staff and %d jobs", len(testStaff), len(jobs))
	return nil
}
