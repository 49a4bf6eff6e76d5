package core

import (
	"testing"

	"github.com/signalsfoundry/stride-kernel/model"
)

func withQuota(id string, quota int) *model.Subentity {
	return &model.Subentity{ID: id, QuotaAssigned: quota, QuotaRemaining: quota}
}

func TestZipperedScheduleReferenceSequence(t *testing.T) {
	subs := []*model.Subentity{
		withQuota("A", 3),
		withQuota("B", 2),
		withQuota("C", 4),
	}

	schedule := ZipperedSchedule(subs)
	if len(schedule) != 9 {
		t.Fatalf("schedule length = %d, want 9", len(schedule))
	}

	wantIDs := []string{"A", "B", "C", "A", "B", "C", "A", "C", "C"}
	for i, entry := range schedule {
		if entry.SubentityID != wantIDs[i] {
			got := make([]string, len(schedule))
			for j, e := range schedule {
				got[j] = e.SubentityID
			}
			t.Fatalf("id sequence = %v, want %v", got, wantIDs)
		}
	}
}

func TestZipperedScheduleStrideIndexesArePerSubentity(t *testing.T) {
	subs := []*model.Subentity{
		withQuota("A", 2),
		withQuota("B", 3),
	}

	schedule := ZipperedSchedule(subs)
	next := map[string]int{}
	for i, entry := range schedule {
		if entry.StrideIndex != next[entry.SubentityID] {
			t.Fatalf("entry %d (%s) stride index = %d, want %d",
				i, entry.SubentityID, entry.StrideIndex, next[entry.SubentityID])
		}
		next[entry.SubentityID]++
	}
	if next["A"] != 2 || next["B"] != 3 {
		t.Fatalf("stride counts = %v, want A:2 B:3", next)
	}
}

func TestZipperedScheduleFairnessPrefixBound(t *testing.T) {
	subs := []*model.Subentity{
		withQuota("A", 3),
		withQuota("B", 2),
		withQuota("C", 4),
		withQuota("D", 0),
		withQuota("E", 7),
	}
	assigned := map[string]int{}
	for _, s := range subs {
		assigned[s.ID] = s.QuotaAssigned
	}

	schedule := ZipperedSchedule(subs)

	granted := map[string]int{}
	for prefix, entry := range schedule {
		granted[entry.SubentityID]++

		// Among subentities that have not yet received their full quota,
		// the spread of granted strides must stay within 1.
		minActive, maxActive, sawActive := 0, 0, false
		for _, s := range subs {
			if granted[s.ID] >= assigned[s.ID] {
				continue
			}
			if !sawActive {
				minActive, maxActive, sawActive = granted[s.ID], granted[s.ID], true
				continue
			}
			if granted[s.ID] < minActive {
				minActive = granted[s.ID]
			}
			if granted[s.ID] > maxActive {
				maxActive = granted[s.ID]
			}
		}
		if sawActive && maxActive-minActive > 1 {
			t.Fatalf("after prefix %d, active stride spread = %d (counts %v)",
				prefix+1, maxActive-minActive, granted)
		}
	}
}

func TestZipperedScheduleEdgeCases(t *testing.T) {
	if got := ZipperedSchedule(nil); len(got) != 0 {
		t.Fatalf("empty input schedule = %v, want empty", got)
	}

	solo := []*model.Subentity{withQuota("A", 4)}
	schedule := ZipperedSchedule(solo)
	if len(schedule) != 4 {
		t.Fatalf("single subentity schedule length = %d, want 4", len(schedule))
	}
	for i, entry := range schedule {
		if entry.SubentityID != "A" || entry.StrideIndex != i {
			t.Fatalf("entry %d = %+v, want (A, %d)", i, entry, i)
		}
	}

	zeroed := []*model.Subentity{withQuota("A", 0), withQuota("B", 2)}
	for _, entry := range ZipperedSchedule(zeroed) {
		if entry.SubentityID == "A" {
			t.Fatalf("zero-quota subentity appeared in schedule")
		}
	}
}

func TestFilterActiveSubentitiesPreservesOrder(t *testing.T) {
	subs := []*model.Subentity{
		withQuota("A", 0),
		withQuota("B", 1),
		withQuota("C", 0),
		withQuota("D", 2),
	}

	active := FilterActiveSubentities(subs)
	if len(active) != 2 || active[0].ID != "B" || active[1].ID != "D" {
		ids := make([]string, len(active))
		for i, s := range active {
			ids[i] = s.ID
		}
		t.Fatalf("active = %v, want [B D]", ids)
	}
}

func TestConsumeQuotaClampsAtZero(t *testing.T) {
	s := withQuota("A", 1)
	ConsumeQuota(s)
	if s.QuotaRemaining != 0 {
		t.Fatalf("QuotaRemaining = %d, want 0", s.QuotaRemaining)
	}
	ConsumeQuota(s)
	if s.QuotaRemaining != 0 {
		t.Fatalf("QuotaRemaining after extra consume = %d, want 0 (no-op)", s.QuotaRemaining)
	}
}
