package billing

import "github.com/google/uuid"

// Actor is the authenticated caller of a ledger operation. A nil ClinicID is
// only used by operator commands and may touch any clinic's bills.
type Actor struct {
	UserID   uuid.UUID
	ClinicID uuid.UUID
}

// Sees reports whether the actor's clinic owns clinicID. Bills of another
// clinic are reported as not found rather than forbidden.
func (a Actor) Sees(clinicID uuid.UUID) bool {
	return a.ClinicID == uuid.Nil || a.ClinicID == clinicID
}
