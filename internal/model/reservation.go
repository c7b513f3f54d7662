package model

import "time"

// Reservation is a booked table slot. TimeSlot and PhoneNumber are each
// unique across the table: one party per slot, one booking per contact.
type Reservation struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	PhoneNumber string    `gorm:"size:64;not null;uniqueIndex:idx_reservations_phone_number" json:"phone_number"`
	TimeSlot    string    `gorm:"size:5;not null;uniqueIndex:idx_reservations_time_slot" json:"time_slot"` // "HH:MM"
	PartySize   int       `gorm:"not null" json:"party_size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
