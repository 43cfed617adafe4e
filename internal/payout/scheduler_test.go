package payout

import "testing"

func TestNewSchedulerDefaultsScheduleWhenEmpty(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	if s.schedule != "0 */6 * * *" {
		t.Fatalf("expected default schedule, got %q", s.schedule)
	}
}

func TestNewSchedulerKeepsExplicitSchedule(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Schedule: "*/15 * * * *"})
	if s.schedule != "*/15 * * * *" {
		t.Fatalf("expected explicit schedule to be kept, got %q", s.schedule)
	}
}
