package availability

import (
	"fmt"
	"time"
)

// Slot is a candidate bookable interval of fixed duration.
type Slot struct {
	Start     time.Time `json:"-"`
	End       time.Time `json:"-"`
	Available bool      `json:"available"`
}

// GenerateSlots emits candidate slots of durationMin minutes inside
// each window, advancing by duration plus buffer after each slot.
// Windows are walked independently so a slot never straddles a break
// or a shift boundary: the whole [t, t+D) interval must fit before
// the window closes, not just the start time.
func GenerateSlots(windows []Window, durationMin, bufferMin int) ([]Slot, error) {
	if durationMin <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %d", durationMin)
	}
	if durationMin+bufferMin <= 0 {
		return nil, fmt.Errorf("slot duration plus buffer must be positive")
	}

	duration := time.Duration(durationMin) * time.Minute
	step := time.Duration(durationMin+bufferMin) * time.Minute

	var slots []Slot
	for _, w := range windows {
		for cursor := w.Start; !cursor.Add(duration).After(w.End); cursor = cursor.Add(step) {
			slots = append(slots, Slot{
				Start:     cursor,
				End:       cursor.Add(duration),
				Available: true,
			})
		}
	}
	return slots, nil
}
