package models

import (
	"time"

	"github.com/lib/pq"
)

// RegistrationStatus представляет статусы заявки участника.
type RegistrationStatus string

const (
	RegistrationStatusPending      RegistrationStatus = "pending"
	RegistrationStatusConfirmed    RegistrationStatus = "confirmed"
	RegistrationStatusWaitlisted   RegistrationStatus = "waitlisted"
	RegistrationStatusCheckedIn    RegistrationStatus = "checked_in"
	RegistrationStatusCanceled     RegistrationStatus = "canceled"
	RegistrationStatusDisqualified RegistrationStatus = "disqualified"
	RegistrationStatusNoShow       RegistrationStatus = "no_show"
)

var registrationStatusTransitions = map[RegistrationStatus][]RegistrationStatus{
	RegistrationStatusPending:      {RegistrationStatusConfirmed, RegistrationStatusWaitlisted, RegistrationStatusCanceled},
	RegistrationStatusConfirmed:    {RegistrationStatusCheckedIn, RegistrationStatusCanceled, RegistrationStatusDisqualified, RegistrationStatusNoShow},
	RegistrationStatusWaitlisted:   {RegistrationStatusConfirmed, RegistrationStatusCanceled},
	RegistrationStatusCheckedIn:    {RegistrationStatusCanceled, RegistrationStatusDisqualified, RegistrationStatusNoShow},
	RegistrationStatusCanceled:     {},
	RegistrationStatusDisqualified: {},
	RegistrationStatusNoShow:       {},
}

func (s RegistrationStatus) IsValid() bool {
	_, ok := registrationStatusTransitions[s]
	return ok
}

func (s RegistrationStatus) IsTerminal() bool {
	switch s {
	case RegistrationStatusCanceled, RegistrationStatusDisqualified, RegistrationStatusNoShow:
		return true
	}
	return false
}

func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	for _, allowed := range registrationStatusTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// CountsTowardCapacity reports whether the registration occupies a slot
// (confirmed + checked_in together are capped by max_participants).
func (s RegistrationStatus) CountsTowardCapacity() bool {
	return s == RegistrationStatusConfirmed || s == RegistrationStatusCheckedIn
}

// Registration представляет заявку участника (или команды) на турнир.
// Downstream identifiers — match slots, standings, prize recipients — are
// registration row ids; user_id/team_id остаются внешними идентификаторами.
type Registration struct {
	ID               int                `json:"id" db:"id"`
	TournamentID     int                `json:"tournament_id" db:"tournament_id"`
	UserID           int                `json:"user_id" db:"user_id"`
	DisplayName      string             `json:"display_name" db:"display_name"`
	TeamID           *int               `json:"team_id,omitempty" db:"team_id"`
	TeamName         *string            `json:"team_name,omitempty" db:"team_name"`
	TeamMemberIDs    pq.Int64Array      `json:"team_member_ids,omitempty" db:"team_member_ids"`
	Status           RegistrationStatus `json:"status" db:"status"`
	Seed             *int               `json:"seed,omitempty" db:"seed"`
	MMR              *int               `json:"mmr,omitempty" db:"mmr"`
	IdentityVerified bool               `json:"identity_verified" db:"identity_verified"`
	Region           *string            `json:"region,omitempty" db:"region"`
	EntryFeePaid     bool               `json:"entry_fee_paid" db:"entry_fee_paid"`
	RefundIssued     bool               `json:"refund_issued" db:"refund_issued"`
	RefundedAt       *time.Time         `json:"refunded_at,omitempty" db:"refunded_at"`
	WaitlistPosition *int               `json:"waitlist_position,omitempty" db:"waitlist_position"`
	CheckedInAt      *time.Time         `json:"checked_in_at,omitempty" db:"checked_in_at"`
	SubstitutedFrom  *int               `json:"substituted_from,omitempty" db:"substituted_from"`
	SubstitutedAt    *time.Time         `json:"substituted_at,omitempty" db:"substituted_at"`
	Metadata         RawJSON            `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`

	Tournament *Tournament `json:"-" db:"-"`
}

// IsTeam reports whether the registration represents a team entry.
func (r *Registration) IsTeam() bool {
	return r.TeamID != nil
}
