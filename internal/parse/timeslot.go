package parse

import (
	"errors"
	"fmt"
	"time"
)

const (
	slotLayout   = "15:04"
	minutesInDay = 24 * 60
)

// ErrInvalidTimeSlot is returned when a value is not a 24-hour HH:MM time.
var ErrInvalidTimeSlot = errors.New("invalid time slot format")

// TimeSlot is a wall-clock time of day with minute precision. It carries
// no date and no timezone.
type TimeSlot struct {
	Hour   int
	Minute int
}

// ParseTimeSlot parses a 24-hour "HH:MM" value. A single-digit hour is
// accepted ("9:30"); String always renders two digits for both fields.
func ParseTimeSlot(raw string) (TimeSlot, error) {
	t, err := time.Parse(slotLayout, raw)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("%w: %q", ErrInvalidTimeSlot, raw)
	}
	return TimeSlot{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// FromTime takes the time of day of t, truncated to the minute.
func FromTime(t time.Time) TimeSlot {
	return TimeSlot{Hour: t.Hour(), Minute: t.Minute()}
}

// String formats the slot as "HH:MM".
func (s TimeSlot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// MinuteOfDay returns the number of minutes since midnight.
func (s TimeSlot) MinuteOfDay() int {
	return s.Hour*60 + s.Minute
}

// CircularDistance is the shortest distance between two times of day,
// going either way around midnight. 23:58 and 00:02 are four minutes apart.
func CircularDistance(a, b TimeSlot) time.Duration {
	d := a.MinuteOfDay() - b.MinuteOfDay()
	if d < 0 {
		d = -d
	}
	if d > minutesInDay-d {
		d = minutesInDay - d
	}
	return time.Duration(d) * time.Minute
}

// Grid lists every slot from start up to and including end, step apart.
func Grid(start, end TimeSlot, step time.Duration) ([]string, error) {
	if step < time.Minute || step%time.Minute != 0 {
		return nil, fmt.Errorf("grid step must be a whole number of minutes, got %s", step)
	}
	if end.MinuteOfDay() < start.MinuteOfDay() {
		return nil, fmt.Errorf("grid end %s is before start %s", end, start)
	}

	stepMins := int(step / time.Minute)
	slots := make([]string, 0, (end.MinuteOfDay()-start.MinuteOfDay())/stepMins+1)
	for m := start.MinuteOfDay(); m <= end.MinuteOfDay(); m += stepMins {
		slots = append(slots, TimeSlot{Hour: m / 60, Minute: m % 60}.String())
	}
	return slots, nil
}
