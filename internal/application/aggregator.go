package application

import (
	"context"
	"sort"

	"github.com/example/meeting-coordinator/internal/persistence"
)

// SlotAvailability is a participant's status for one slot in the aggregated view.
type SlotAvailability struct {
	Time    string
	Status  string
	Comment string
}

// ParticipantAvailability is one participant's row in the aggregated view.
type ParticipantAvailability struct {
	UserID string
	Name   string
	Slots  []SlotAvailability
}

// AvailabilityAggregator reshapes stored submissions into a per participant, per slot view.
type AvailabilityAggregator struct {
	availabilities persistence.AvailabilityRepository
}

// NewAvailabilityAggregator wires the repository the aggregator reads from.
func NewAvailabilityAggregator(availabilities persistence.AvailabilityRepository) *AvailabilityAggregator {
	return &AvailabilityAggregator{availabilities: availabilities}
}

// Aggregate returns every participant's slot statuses for a meeting the caller already loaded.
// Participants are ordered by name then user id; slots follow the meeting's candidate order with
// unknown slot keys appended in sorted order. ErrNoParticipants is returned when nobody responded.
func (a *AvailabilityAggregator) Aggregate(ctx context.Context, meeting persistence.Meeting) ([]ParticipantAvailability, error) {
	records, err := a.availabilities.ListAvailabilities(ctx, meeting.ID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if len(records) == 0 {
		return nil, ErrNoParticipants
	}

	return aggregateRecords(meeting.TimeSlots, records), nil
}

func aggregateRecords(timeSlots []string, records []persistence.Availability) []ParticipantAvailability {
	known := make(map[string]bool, len(timeSlots))
	for _, slot := range timeSlots {
		known[slot] = true
	}

	result := make([]ParticipantAvailability, 0, len(records))
	for _, record := range records {
		row := ParticipantAvailability{UserID: record.UserID, Name: record.UserName}

		for _, slot := range timeSlots {
			if response, ok := record.Schedule[slot]; ok {
				row.Slots = append(row.Slots, slotFromResponse(slot, response))
			}
		}

		var extra []string
		for slot := range record.Schedule {
			if !known[slot] {
				extra = append(extra, slot)
			}
		}
		sort.Strings(extra)
		for _, slot := range extra {
			row.Slots = append(row.Slots, slotFromResponse(slot, record.Schedule[slot]))
		}

		result = append(result, row)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].UserID < result[j].UserID
		}
		return result[i].Name < result[j].Name
	})
	return result
}

func slotFromResponse(slot string, response persistence.SlotResponse) SlotAvailability {
	status := response.Status
	if status == "" {
		status = SlotUnavailable
	}
	return SlotAvailability{Time: slot, Status: status, Comment: response.Comment}
}
