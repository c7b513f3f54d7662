package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"reservation-backend/internal/model"
	"reservation-backend/internal/parse"
)

// upsertAttempts bounds how often an upsert is replayed after losing a
// race on one of the unique indexes.
const upsertAttempts = 2

// Store defines the interface for all reservation operations.
type Store interface {
	UpsertReservation(ctx context.Context, in ReservationInput) (*model.Reservation, UpsertResult, error)
	GetReservation(ctx context.Context, phoneNumber string) (*model.Reservation, error)
	ListReservations(ctx context.Context) ([]model.Reservation, error)
	ListBookedSlots(ctx context.Context) ([]string, error)
	AvailableSlots(ctx context.Context, grid []string) ([]string, error)
	CheckIn(ctx context.Context, phoneNumber string, now time.Time) (CheckInStatus, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db            *gorm.DB
	checkInWindow time.Duration
}

// Option customizes a gormStore.
type Option func(*gormStore)

// WithCheckInWindow sets how far either side of a slot a check-in is accepted.
func WithCheckInWindow(d time.Duration) Option {
	return func(s *gormStore) {
		if d > 0 {
			s.checkInWindow = d
		}
	}
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{db: db, checkInWindow: DefaultCheckInWindow}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for collaborators that manage their
// own tables, such as push subscriptions.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertReservation creates a reservation for a new contact, or moves and
// overwrites the contact's existing one. Either way the target slot must
// not be held by a different contact. The lookup and the write run in one
// transaction, and the unique indexes on phone_number and time_slot catch
// any writer that slips in between; such a conflict replays the upsert
// once against the now-committed state.
func (s *gormStore) UpsertReservation(ctx context.Context, in ReservationInput) (*model.Reservation, UpsertResult, error) {
	slot, err := parse.ParseTimeSlot(in.TimeSlot)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidTimeFormat, in.TimeSlot)
	}
	in.TimeSlot = slot.String()

	for attempt := 1; ; attempt++ {
		res, result, err := s.upsertOnce(ctx, in)
		if err == nil {
			log.Ctx(ctx).Debug().
				Int64("reservation_id", res.ID).
				Str("time_slot", res.TimeSlot).
				Str("result", string(result)).
				Msg("reservation stored")
			return res, result, nil
		}
		if !isUniqueViolation(err) {
			return nil, "", err
		}
		if attempt >= upsertAttempts {
			return nil, "", ErrSlotAlreadyBooked
		}
		log.Ctx(ctx).Debug().Err(err).Int("attempt", attempt).Msg("upsert lost a unique-index race, retrying")
	}
}

func (s *gormStore) upsertOnce(ctx context.Context, in ReservationInput) (*model.Reservation, UpsertResult, error) {
	var (
		res    model.Reservation
		result UpsertResult
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("phone_number = ?", in.PhoneNumber).Take(&res).Error
		switch {
		case err == nil:
			result = ResultUpdated
		case errors.Is(err, gorm.ErrRecordNotFound):
			result = ResultCreated
		default:
			return storageErr("failed to look up reservation by phone number", err)
		}

		taken, err := slotHeldByOther(tx, in.TimeSlot, res.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotAlreadyBooked
		}

		if result == ResultUpdated {
			if err := tx.Model(&res).Updates(map[string]any{
				"name":       in.Name,
				"time_slot":  in.TimeSlot,
				"party_size": in.PartySize,
			}).Error; err != nil {
				return storageErr("failed to update reservation", err)
			}
			// Updates with a map does not refresh the struct's plain fields.
			res.Name, res.TimeSlot, res.PartySize = in.Name, in.TimeSlot, in.PartySize
			return nil
		}

		res = model.Reservation{
			Name:        in.Name,
			PhoneNumber: in.PhoneNumber,
			TimeSlot:    in.TimeSlot,
			PartySize:   in.PartySize,
		}
		if err := tx.Create(&res).Error; err != nil {
			return storageErr("failed to create reservation", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return &res, result, nil
}

// slotHeldByOther reports whether a reservation other than excludeID holds slot.
func slotHeldByOther(tx *gorm.DB, slot string, excludeID int64) (bool, error) {
	var count int64
	q := tx.Model(&model.Reservation{}).Where("time_slot = ?", slot)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, storageErr("failed to check slot availability", err)
	}
	return count > 0, nil
}

// GetReservation returns the reservation held by phoneNumber.
func (s *gormStore) GetReservation(ctx context.Context, phoneNumber string) (*model.Reservation, error) {
	var res model.Reservation
	err := s.db.WithContext(ctx).Where("phone_number = ?", phoneNumber).Take(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("failed to look up reservation", err)
	}
	return &res, nil
}

// ListReservations returns every reservation ordered by slot.
func (s *gormStore) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	var reservations []model.Reservation
	if err := s.db.WithContext(ctx).Order("time_slot ASC").Find(&reservations).Error; err != nil {
		return nil, storageErr("failed to list reservations", err)
	}
	return reservations, nil
}

// ListBookedSlots returns the distinct booked slots in ascending order.
func (s *gormStore) ListBookedSlots(ctx context.Context) ([]string, error) {
	var slots []string
	if err := s.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Distinct("time_slot").
		Pluck("time_slot", &slots).Error; err != nil {
		return nil, storageErr("failed to list booked slots", err)
	}
	sort.Strings(slots)
	return slots, nil
}

// AvailableSlots returns the grid slots nobody has booked, in grid order.
func (s *gormStore) AvailableSlots(ctx context.Context, grid []string) ([]string, error) {
	booked, err := s.ListBookedSlots(ctx)
	if err != nil {
		return nil, err
	}

	bookedSet := make(map[string]struct{}, len(booked))
	for _, slot := range booked {
		bookedSet[slot] = struct{}{}
	}

	available := make([]string, 0, len(grid))
	for _, slot := range grid {
		if _, ok := bookedSet[slot]; !ok {
			available = append(available, slot)
		}
	}
	return available, nil
}

// CheckIn reports whether phoneNumber holds a slot within the check-in
// window around now. The slot has no date, so the comparison is made on
// the time of day and wraps around midnight: a 00:00 booking is ready at
// 23:57. now is truncated to the minute, as is the stored slot.
func (s *gormStore) CheckIn(ctx context.Context, phoneNumber string, now time.Time) (CheckInStatus, error) {
	res, err := s.GetReservation(ctx, phoneNumber)
	if errors.Is(err, ErrNotFound) {
		return CheckInNotFound, nil
	}
	if err != nil {
		return "", err
	}

	slot, err := parse.ParseTimeSlot(res.TimeSlot)
	if err != nil {
		// Rows written before slot normalization may hold unparsable text.
		log.Ctx(ctx).Warn().Int64("reservation_id", res.ID).Str("time_slot", res.TimeSlot).Msg("stored slot is not a valid time")
		return CheckInNotFound, nil
	}

	if parse.CircularDistance(slot, parse.FromTime(now)) <= s.checkInWindow {
		return CheckInSeatReady, nil
	}
	return CheckInNotFound, nil
}

func storageErr(msg string, err error) error {
	if isUniqueViolation(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, msg, err)
}

// isUniqueViolation relies on the handle being opened with TranslateError.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
