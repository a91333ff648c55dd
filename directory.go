package approval

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// OwnerSummary pairs an approved owner profile with its establishment count.
type OwnerSummary struct {
	Profile            *Profile `json:"profile"`
	EstablishmentCount int      `json:"establishment_count"`
}

// Directory is the admin-facing read model: pending registrations and
// approved owners with their establishment counts.
type Directory struct {
	repo   RepositoryManager
	logger Logger
}

// NewDirectory creates a directory over the repository manager.
func NewDirectory(repo RepositoryManager) *Directory {
	return &Directory{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the directory.
func (d *Directory) WithLogger(logger Logger) *Directory {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// PendingProfiles lists profiles awaiting review.
func (d *Directory) PendingProfiles(ctx context.Context) ([]*Profile, error) {
	profiles, err := d.repo.Profiles().ListByStatus(ctx, StatusPending)
	if err != nil {
		d.logger.Error("pending profile listing failed: %v", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list pending profiles")
	}
	return profiles, nil
}

// ApprovedOwners lists approved establishment owners, each with the number
// of establishments they own. The count comes from one aggregate pass over
// the establishment set, never from per-owner round trips.
func (d *Directory) ApprovedOwners(ctx context.Context) ([]OwnerSummary, error) {
	owners, err := d.repo.Profiles().ListByRoleAndStatus(ctx, RoleEstablishmentOwner, StatusApproved)
	if err != nil {
		d.logger.Error("approved owner listing failed: %v", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list approved owners")
	}

	counts, err := d.repo.Establishments().CountByOwner(ctx)
	if err != nil {
		d.logger.Error("establishment count query failed: %v", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count establishments by owner")
	}

	out := make([]OwnerSummary, 0, len(owners))
	for _, owner := range owners {
		out = append(out, OwnerSummary{
			Profile:            owner,
			EstablishmentCount: counts[owner.ID],
		})
	}

	return out, nil
}
