package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/repolens/repolens-backend/internal/types"
)

type fakeSettingRepo struct {
	values map[string]string
}

func (r *fakeSettingRepo) Get(ctx context.Context, key, defaultVal string) (string, error) {
	if v, ok := r.values[key]; ok {
		return v, nil
	}
	return defaultVal, nil
}

func (r *fakeSettingRepo) Set(ctx context.Context, key, value string) error {
	r.values[key] = value
	return nil
}

func newTestScheduler(t *testing.T, settings *fakeSettingRepo) *Scheduler {
	t.Helper()
	orch, _ := newTestOrchestrator(t, newFakeProjectRepo(), &fakeGithub{results: map[string][]*types.Project{}}, &fakePipeline{})
	return NewScheduler(mustTestLogger(t), orch, settings, "02:00")
}

func TestSchedulerDueAtMatchesConfiguredMinute(t *testing.T) {
	settings := &fakeSettingRepo{values: map[string]string{"scan_time": "03:30"}}
	sched := newTestScheduler(t, settings)

	at := func(hour, minute int) time.Time {
		return time.Date(2026, 8, 28, hour, minute, 10, 0, time.Local)
	}

	if sched.dueAt(context.Background(), at(3, 29)) {
		t.Fatalf("03:29 should not fire a 03:30 scan")
	}
	if !sched.dueAt(context.Background(), at(3, 30)) {
		t.Fatalf("03:30 should fire")
	}
}

func TestSchedulerFiresOncePerDay(t *testing.T) {
	settings := &fakeSettingRepo{values: map[string]string{}}
	sched := newTestScheduler(t, settings)

	now := time.Date(2026, 8, 28, 2, 0, 5, 0, time.Local)
	if !sched.dueAt(context.Background(), now) {
		t.Fatalf("default 02:00 scan should be due")
	}
	sched.markRun(now)

	// Later polls inside the same minute, and the rest of the day, are
	// deduplicated.
	if sched.dueAt(context.Background(), now.Add(30*time.Second)) {
		t.Fatalf("second poll of the same minute should not fire")
	}

	// The next day it is due again.
	tomorrow := now.AddDate(0, 0, 1)
	if !sched.dueAt(context.Background(), tomorrow) {
		t.Fatalf("next day's scan should be due")
	}
}

func TestSchedulerFallsBackToDefaultTime(t *testing.T) {
	settings := &fakeSettingRepo{values: map[string]string{}}
	sched := newTestScheduler(t, settings)

	now := time.Date(2026, 8, 28, 2, 0, 0, 0, time.Local)
	if !sched.dueAt(context.Background(), now) {
		t.Fatalf("unset setting should fall back to the 02:00 default")
	}
}
