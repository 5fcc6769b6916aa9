package domain_test

import (
	"testing"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/domain"
)

func TestSchedule_IsAcquiredBy(t *testing.T) {
	owner := "scheduler-a"
	future := time.Now().Add(time.Minute)
	past := time.Now().Add(-time.Minute)

	cases := []struct {
		name string
		sch  domain.Schedule
		want bool
	}{
		{"unlocked", domain.Schedule{}, false},
		{"locked by someone else", domain.Schedule{AcquiredBy: strPtr("other"), AcquiredUntil: &future}, false},
		{"locked by owner, lease live", domain.Schedule{AcquiredBy: &owner, AcquiredUntil: &future}, true},
		{"locked by owner, lease expired", domain.Schedule{AcquiredBy: &owner, AcquiredUntil: &past}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.sch.IsAcquiredBy(owner, time.Now())
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSchedule_Terminal(t *testing.T) {
	ft := time.Now()
	if (&domain.Schedule{NextFireTime: &ft}).Terminal() {
		t.Fatal("schedule with a pending fire time must not be terminal")
	}
	if !(&domain.Schedule{}).Terminal() {
		t.Fatal("schedule with no pending fire time must be terminal")
	}
}

func TestJob_MissedDeadline(t *testing.T) {
	deadline := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := domain.Job{StartDeadline: &deadline}

	if j.MissedDeadline(deadline.Add(-time.Second)) {
		t.Fatal("starting before the deadline must not count as missed")
	}
	if !j.MissedDeadline(deadline.Add(time.Second)) {
		t.Fatal("starting after the deadline must count as missed")
	}

	noDeadline := domain.Job{}
	if noDeadline.MissedDeadline(time.Now().Add(time.Hour)) {
		t.Fatal("a job with no deadline can never miss it")
	}
}

func TestEvent_TimestampIsAssignedAtConstruction(t *testing.T) {
	before := time.Now().UTC()
	ev := domain.NewScheduleAdded("s1")
	after := time.Now().UTC()

	if ev.Timestamp().Before(before) || ev.Timestamp().After(after) {
		t.Fatalf("timestamp %v not within [%v, %v]", ev.Timestamp(), before, after)
	}
	if ev.ScheduleID != "s1" {
		t.Fatalf("unexpected schedule id: %s", ev.ScheduleID)
	}
}

func strPtr(s string) *string { return &s }
