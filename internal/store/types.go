package store

import (
	"errors"
	"time"
)

var (
	// ErrInvalidTimeFormat means the requested slot is not a 24-hour HH:MM value.
	ErrInvalidTimeFormat = errors.New("invalid time slot format")
	// ErrSlotAlreadyBooked means another contact already holds the requested slot.
	ErrSlotAlreadyBooked = errors.New("time slot is already booked")
	// ErrStorageUnavailable wraps every failure of the underlying database.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotFound is returned by lookups when no reservation matches.
	ErrNotFound = errors.New("reservation not found")
)

// ReservationInput carries the caller-supplied fields of an upsert.
type ReservationInput struct {
	Name        string
	PhoneNumber string
	TimeSlot    string
	PartySize   int
}

// UpsertResult tells whether an upsert created a new reservation or
// overwrote the contact's existing one.
type UpsertResult string

const (
	ResultCreated UpsertResult = "created"
	ResultUpdated UpsertResult = "updated"
)

// CheckInStatus is the outcome of a check-in attempt.
type CheckInStatus string

const (
	CheckInSeatReady CheckInStatus = "seat_ready"
	CheckInNotFound  CheckInStatus = "not_found"
)

// DefaultCheckInWindow is how far either side of a slot a guest may check in.
const DefaultCheckInWindow = 5 * time.Minute
