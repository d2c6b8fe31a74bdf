package availability

import (
	"time"

	"zapis/internal/models"
)

// MarkOccupied flags every slot that overlaps a live appointment.
// Appointments must already be scoped to the (schedule, agent) pair;
// the test is the half-open interval overlap s < a.end && s.end > a.start.
func MarkOccupied(slots []Slot, appointments []models.Appointment) []Slot {
	for i := range slots {
		for j := range appointments {
			if appointments[j].Overlaps(slots[i].Start, int(slots[i].End.Sub(slots[i].Start)/time.Minute)) {
				slots[i].Available = false
				break
			}
		}
	}
	return slots
}

// MarkBeforeNotice flags slots starting before the minimum-notice
// bound. Notice is a timestamp-level check, applied per slot.
func MarkBeforeNotice(slots []Slot, noticeBound time.Time) []Slot {
	for i := range slots {
		if slots[i].Start.Before(noticeBound) {
			slots[i].Available = false
		}
	}
	return slots
}
