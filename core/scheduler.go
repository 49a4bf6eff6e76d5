package core

import (
	"github.com/signalsfoundry/stride-kernel/model"
)

// ZipperedSchedule builds the complete stride order for one tick from the
// quota state already written by the allocator. It repeats rounds over the
// subentities in their original input order, emitting one stride per
// subentity with quota left; exhausted subentities drop out of later rounds.
//
// The schedule is eager and finite: it is built once from the quota snapshot
// and covers exactly sum(QuotaAssigned) entries. Building it consumes
// QuotaRemaining down to zero.
//
// Fairness holds for every prefix of the output: among subentities still
// short of their full quota, granted stride counts never differ by more
// than one. There are no fixed priorities.
func ZipperedSchedule(subs []*model.Subentity) []model.ScheduleEntry {
	if len(subs) == 0 {
		return []model.ScheduleEntry{}
	}

	total := 0
	for _, s := range subs {
		total += s.QuotaRemaining
	}
	schedule := make([]model.ScheduleEntry, 0, total)
	strideCounts := make(map[string]int, len(subs))

	for len(FilterActiveSubentities(subs)) > 0 {
		for _, s := range subs {
			if s.QuotaRemaining <= 0 {
				continue
			}
			schedule = append(schedule, model.ScheduleEntry{
				SubentityID: s.ID,
				StrideIndex: strideCounts[s.ID],
			})
			strideCounts[s.ID]++
			ConsumeQuota(s)
		}
	}
	return schedule
}

// FilterActiveSubentities returns the subentities that still have quota
// remaining, preserving relative order.
func FilterActiveSubentities(subs []*model.Subentity) []*model.Subentity {
	active := make([]*model.Subentity, 0, len(subs))
	for _, s := range subs {
		if s.QuotaRemaining > 0 {
			active = append(active, s)
		}
	}
	return active
}

// ConsumeQuota decrements QuotaRemaining by one, clamped at zero. Calling it
// on an exhausted subentity is a no-op, not an error.
func ConsumeQuota(s *model.Subentity) {
	if s.QuotaRemaining > 0 {
		s.QuotaRemaining--
	}
}
