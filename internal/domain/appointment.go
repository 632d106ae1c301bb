package domain

import (
	"time"

	"github.com/google/uuid"
)

// Appointment represents a scheduled telehealth visit between exactly two
// parties. It is consulted only for authorization (is the caller a party to
// this appointment?) and as the key for stored session descriptors.
type Appointment struct {
	AppointmentID uuid.UUID `json:"appointment_id" db:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id" db:"patient_id"`
	ProviderID    uuid.UUID `json:"provider_id" db:"provider_id"`
	Status        string    `json:"status" db:"status"` // scheduled, completed, cancelled
	ScheduledAt   time.Time `json:"scheduled_at" db:"scheduled_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// IsParty reports whether userID is one of the appointment's two designated identities
func (a *Appointment) IsParty(userID uuid.UUID) bool {
	return userID == a.PatientID || userID == a.ProviderID
}

// OtherParty returns the counterpart identity for userID, or uuid.Nil if
// userID is not a party to the appointment
func (a *Appointment) OtherParty(userID uuid.UUID) uuid.UUID {
	switch userID {
	case a.PatientID:
		return a.ProviderID
	case a.ProviderID:
		return a.PatientID
	}
	return uuid.Nil
}
