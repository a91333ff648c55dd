package approval

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileRole is the application-level role of a profile
type ProfileRole = string

const (
	// RoleAdmin reviews registrations and runs the approval workflow
	RoleAdmin ProfileRole = "admin"
	// RoleEstablishmentOwner owns one or more registered establishments
	RoleEstablishmentOwner ProfileRole = "establishment_owner"
	// RoleFireInspector inspects establishments; has no dashboard yet
	RoleFireInspector ProfileRole = "fire_inspector"
)

// ProfileStatus tracks where a profile sits in the approval workflow.
type ProfileStatus string

const (
	// StatusPending is the status assigned at registration time
	StatusPending ProfileStatus = "pending"
	// StatusApproved is set by an admin through the approval workflow
	StatusApproved ProfileStatus = "approved"
	// StatusRejected is terminal; a rejected account is blocked at sign-in
	StatusRejected ProfileStatus = "rejected"
)

// IsValid checks the status is one of the closed set. Unknown values coming
// back from the store are rejected at the boundary instead of flowing inward.
func (s ProfileStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// ParseStatus safely parses a string into a ProfileStatus
func ParseStatus(raw string) (ProfileStatus, bool) {
	status := ProfileStatus(raw)
	return status, status.IsValid()
}

// statusTransitions is the closed transition graph for the approval workflow.
// Status only ever moves pending -> approved or pending -> rejected.
var statusTransitions = map[ProfileStatus]map[ProfileStatus]struct{}{
	StatusPending: {
		StatusApproved: {},
		StatusRejected: {},
	},
}

// CanTransition reports whether the approval workflow may move a profile
// from one status to another.
func CanTransition(from, to ProfileStatus) bool {
	if allowed, ok := statusTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Profile is the application-level user record, one-to-one with the identity
// provider account by id.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID     `bun:"id,pk,type:uuid" json:"id,omitempty"`
	FirstName     string        `bun:"first_name,notnull" json:"first_name,omitempty"`
	MiddleName    string        `bun:"middle_name" json:"middle_name,omitempty"`
	LastName      string        `bun:"last_name,notnull" json:"last_name,omitempty"`
	Role          ProfileRole   `bun:"role,notnull" json:"role,omitempty"`
	Status        ProfileStatus `bun:"status,notnull" json:"status,omitempty"`
	IsFirstLogin  bool          `bun:"is_first_login" json:"is_first_login"`
	CreatedAt     *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureStatus backfills the zero value so legacy rows behave as pending.
func (p *Profile) EnsureStatus() {
	if p.Status == "" {
		p.Status = StatusPending
	}
}

// IsPending reports whether the profile is awaiting review
func (p *Profile) IsPending() bool {
	p.EnsureStatus()
	return p.Status == StatusPending
}

// IsApproved reports whether an admin approved the profile
func (p *Profile) IsApproved() bool {
	return p.Status == StatusApproved
}

// IsRejected reports whether an admin rejected the profile
func (p *Profile) IsRejected() bool {
	return p.Status == StatusRejected
}

// FullName joins the name fields, skipping an empty middle name.
func (p *Profile) FullName() string {
	name := p.FirstName
	if p.MiddleName != "" {
		name += " " + p.MiddleName
	}
	if p.LastName != "" {
		name += " " + p.LastName
	}
	return name
}

// EstablishmentStatus is the operational status of an establishment
type EstablishmentStatus = string

const (
	// EstablishmentActive is the default status for new establishments
	EstablishmentActive EstablishmentStatus = "active"
	// EstablishmentInactive marks establishments no longer operating
	EstablishmentInactive EstablishmentStatus = "inactive"
)

// Establishment is a facility owned by an establishment_owner profile.
// The approval core only ever reads these rows; mutation beyond the initial
// insert belongs to the owner-facing surfaces.
type Establishment struct {
	bun.BaseModel     `bun:"table:establishments,alias:est"`
	ID                uuid.UUID           `bun:"id,pk,type:uuid" json:"id,omitempty"`
	OwnerID           uuid.UUID           `bun:"owner_id,notnull,type:uuid" json:"owner_id,omitempty"`
	Name              string              `bun:"name,notnull" json:"name,omitempty"`
	BuildingPermitNo  string              `bun:"building_permit_no,notnull" json:"building_permit_no,omitempty"`
	Status            EstablishmentStatus `bun:"status,notnull,default:'active'" json:"status,omitempty"`
	CertificateExpiry *time.Time          `bun:"certificate_expiry,nullzero" json:"certificate_expiry,omitempty"`
	CreatedAt         *time.Time          `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
