package approval

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Establishments is the establishment store surface used by the core. The
// core only inserts rows during registration and reads them for listings
// and aggregate counts.
type Establishments interface {
	repository.Repository[*Establishment]

	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Establishment, error)

	// CountByOwner returns the number of establishments per owner, computed
	// in a single pass over the full establishment set. One round trip, no
	// per-owner queries.
	CountByOwner(ctx context.Context) (map[uuid.UUID]int, error)
}

type establishments struct {
	repository.Repository[*Establishment]
	db *bun.DB
}

var _ Establishments = (*establishments)(nil)

// NewEstablishmentsRepository builds the Establishments repository over bun.
func NewEstablishmentsRepository(db *bun.DB) Establishments {
	repo := repository.NewRepository[*Establishment](db, repository.ModelHandlers[*Establishment]{
		NewRecord: func() *Establishment { return &Establishment{} },
		GetID: func(e *Establishment) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *Establishment, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})

	return &establishments{
		Repository: repo,
		db:         db,
	}
}

func (r *establishments) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Establishment, error) {
	var out []*Establishment
	err := r.db.NewSelect().
		Model(&out).
		Where("est.owner_id = ?", ownerID).
		Order("est.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *establishments) CountByOwner(ctx context.Context) (map[uuid.UUID]int, error) {
	var rows []*Establishment
	err := r.db.NewSelect().
		Model(&rows).
		Column("est.id", "est.owner_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return FoldOwnerCounts(rows), nil
}

// FoldOwnerCounts folds establishments into a per-owner count in one pass.
// Owners with no establishments are simply absent; counts are never negative.
func FoldOwnerCounts(rows []*Establishment) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		if row == nil || row.OwnerID == uuid.Nil {
			continue
		}
		counts[row.OwnerID]++
	}
	return counts
}
