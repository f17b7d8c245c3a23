package store

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/jackc/pgx/v4"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

var ErrStaffNotFound = errors.New("staff_not_found")

type StaffRepository interface {
	GetContact(ctx context.Context, id string) (*models.StaffContact, error)
	// ListByCapability returns the ids of staff holding role, sorted.
	ListByCapability(ctx context.Context, role models.RoleTag) ([]string, error)
	Upsert(ctx context.Context, c *models.StaffContact, capabilities []models.RoleTag) error
}

type staffRepo struct {
	db DB
}

func NewStaffRepository(db DB) StaffRepository {
	return &staffRepo{db: db}
}

func (r *staffRepo) GetContact(ctx context.Context, id string) (*models.StaffContact, error) {
	var (
		c            models.StaffContact
		phone, email *string
	)
	err := r.db.QueryRow(ctx, `
        SELECT id, name, phone_number, email
        FROM staff
        WHERE id=$1
    `, id).Scan(&c.ID, &c.Name, &phone, &email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaffNotFound
	}
	if err != nil {
		return nil, utils.NewStoreError("staff.get_contact", err)
	}
	c.PhoneNumber = utils.Val(phone)
	c.Email = utils.Val(email)
	return &c, nil
}

func (r *staffRepo) ListByCapability(ctx context.Context, role models.RoleTag) ([]string, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id
        FROM staff
        WHERE capabilities @> ARRAY[$1]::TEXT[]
        ORDER BY id
    `, string(role))
	if err != nil {
		return nil, utils.NewStoreError("staff.list_by_capability", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, utils.NewStoreError("staff.list_by_capability", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewStoreError("staff.list_by_capability", err)
	}
	return ids, nil
}

func (r *staffRepo) Upsert(ctx context.Context, c *models.StaffContact, capabilities []models.RoleTag) error {
	caps := make([]string, len(capabilities))
	for i, cp := range capabilities {
		caps[i] = string(cp)
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO staff (id, name, phone_number, email, capabilities, created_at, updated_at)
        VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),$5,NOW(),NOW())
        ON CONFLICT (id) DO UPDATE
        SET name=EXCLUDED.name,
            phone_number=EXCLUDED.phone_number,
            email=EXCLUDED.email,
            capabilities=EXCLUDED.capabilities,
            updated_at=NOW()
    `, c.ID, c.Name, c.PhoneNumber, c.Email, caps)
	if err != nil {
		return utils.NewStoreError("staff.upsert", err)
	}
	return nil
}

// MemoryStaffRepository is the directory used when no database is configured.
type MemoryStaffRepository struct {
	mu           sync.RWMutex
	contacts     map[string]models.StaffContact
	capabilities map[string][]models.RoleTag
}

func NewMemoryStaffRepository() *MemoryStaffRepository {
	return &MemoryStaffRepository{
		contacts:     make(map[string]models.StaffContact),
		capabilities: make(map[string][]models.RoleTag),
	}
}

func (r *MemoryStaffRepository) GetContact(_ context.Context, id string) (*models.StaffContact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[id]
	if !ok {
		return nil, ErrStaffNotFound
	}
	return &c, nil
}

func (r *MemoryStaffRepository) ListByCapability(_ context.Context, role models.RoleTag) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, caps := range r.capabilities {
		if slices.Contains(caps, role) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryStaffRepository) Upsert(_ context.Context, c *models.StaffContact, capabilities []models.RoleTag) error {
	r.mu.Lock()
	r.contacts[c.ID] = *c
	r.capabilities[c.ID] = slices.Clone(capabilities)
	r.mu.Unlock()
	return nil
}
