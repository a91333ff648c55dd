package approval

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClearFirstLoginSQL flips the first-login flag after a successful password
// change.
var ClearFirstLoginSQL = `UPDATE "profiles"
SET
	"is_first_login" = FALSE,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"id" = ?;`

// Profiles is the profile store surface used by the core.
type Profiles interface {
	repository.Repository[*Profile]

	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Profile, error)

	ListByStatus(ctx context.Context, status ProfileStatus) ([]*Profile, error)
	ListByRoleAndStatus(ctx context.Context, role ProfileRole, status ProfileStatus) ([]*Profile, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status ProfileStatus) (*Profile, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status ProfileStatus) (*Profile, error)

	ClearFirstLogin(ctx context.Context, id uuid.UUID) error
	ClearFirstLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var _ Profiles = (*profiles)(nil)

// NewProfilesRepository builds the Profiles repository over bun.
func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (r *profiles) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *profiles) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Profile, error) {
	profile := new(Profile)
	err := tx.NewSelect().
		Model(profile).
		Where("prf.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewProfileNotFoundError(id.String())
		}
		return nil, err
	}

	profile.EnsureStatus()
	return profile, nil
}

func (r *profiles) ListByStatus(ctx context.Context, status ProfileStatus) ([]*Profile, error) {
	var out []*Profile
	err := r.db.NewSelect().
		Model(&out).
		Where("prf.status = ?", status).
		Order("prf.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *profiles) ListByRoleAndStatus(ctx context.Context, role ProfileRole, status ProfileStatus) ([]*Profile, error) {
	var out []*Profile
	err := r.db.NewSelect().
		Model(&out).
		Where("prf.role = ?", role).
		Where("prf.status = ?", status).
		Order("prf.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *profiles) UpdateStatus(ctx context.Context, id uuid.UUID, status ProfileStatus) (*Profile, error) {
	return r.UpdateStatusTx(ctx, r.db, id, status)
}

func (r *profiles) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status ProfileStatus) (*Profile, error) {
	profile := new(Profile)
	err := tx.NewUpdate().
		Model(profile).
		Set("status = ?", status).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewProfileNotFoundError(id.String())
		}
		return nil, err
	}
	return profile, nil
}

func (r *profiles) ClearFirstLogin(ctx context.Context, id uuid.UUID) error {
	return r.ClearFirstLoginTx(ctx, r.db, id)
}

func (r *profiles) ClearFirstLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, ClearFirstLoginSQL, id.String())
	return err
}
