package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAchievementServiceCreateValidation(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewAchievementService(gdb)
	ctx := context.Background()

	invalid := []AchievementInput{
		{Key: "k", Name: "n", Metric: "hugs_given", Threshold: 1},
		{Key: "k", Name: "n", Metric: "current_streak", Threshold: 0},
		{Key: "", Name: "n", Metric: "current_streak", Threshold: 1},
	}
	for _, input := range invalid {
		if _, err := svc.Create(ctx, input); !errors.Is(err, ErrAchievementInvalid) {
			t.Fatalf("expected ErrAchievementInvalid for %+v, got %v", input, err)
		}
	}

	if _, err := svc.Create(ctx, AchievementInput{Key: "week", Name: "One week", Metric: " Current_Streak ", Threshold: 7}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.Create(ctx, AchievementInput{Key: "week", Name: "Again", Metric: "current_streak", Threshold: 7}); !errors.Is(err, ErrAchievementDuplicate) {
		t.Fatalf("expected ErrAchievementDuplicate, got %v", err)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 1 || list[0].Metric != "current_streak" {
		t.Fatalf("unexpected achievements %+v", list)
	}
}

func TestAchievementNotifierOneAtATime(t *testing.T) {
	gdb := setupServiceTestDB(t)
	member := createTestMember(t, gdb, "Stephen")
	other := createTestMember(t, gdb, "Philip")
	ctx := context.Background()

	achievements := NewAchievementService(gdb)
	for _, input := range []AchievementInput{
		{Key: "first-step", Name: "First step", Metric: "engagement_score", Threshold: 1},
		{Key: "generous", Name: "Generous", Metric: "donations_made", Threshold: 1},
	} {
		if _, err := achievements.Create(ctx, input); err != nil {
			t.Fatalf("create %s: %v", input.Key, err)
		}
	}

	engagement := NewEngagementService(gdb)
	engagement.SetClock(fixedClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)))
	if _, err := engagement.LogActivity(ctx, member.ID, "login"); err != nil {
		t.Fatalf("log login: %v", err)
	}
	engagement.SetClock(fixedClock(time.Date(2026, 4, 1, 11, 0, 0, 0, time.UTC)))
	if _, err := engagement.LogActivity(ctx, member.ID, "donation"); err != nil {
		t.Fatalf("log donation: %v", err)
	}

	next, err := achievements.NextUncelebrated(ctx, member.ID)
	if err != nil {
		t.Fatalf("NextUncelebrated returned error: %v", err)
	}
	if next == nil || next.Achievement.Key != "first-step" {
		t.Fatalf("expected oldest achievement first-step, got %+v", next)
	}

	if err := achievements.Celebrate(ctx, other.ID, next.ID); !errors.Is(err, ErrAchievementNotFound) {
		t.Fatalf("expected ErrAchievementNotFound for another member, got %v", err)
	}
	if err := achievements.Celebrate(ctx, member.ID, next.ID); err != nil {
		t.Fatalf("Celebrate returned error: %v", err)
	}
	if err := achievements.Celebrate(ctx, member.ID, next.ID); err != nil {
		t.Fatalf("second Celebrate should be a no-op, got %v", err)
	}

	next, err = achievements.NextUncelebrated(ctx, member.ID)
	if err != nil {
		t.Fatalf("NextUncelebrated returned error: %v", err)
	}
	if next == nil || next.Achievement.Key != "generous" {
		t.Fatalf("expected generous next, got %+v", next)
	}
	if err := achievements.Celebrate(ctx, member.ID, next.ID); err != nil {
		t.Fatalf("Celebrate returned error: %v", err)
	}

	next, err = achievements.NextUncelebrated(ctx, member.ID)
	if err != nil || next != nil {
		t.Fatalf("expected no pending achievements, got %+v err=%v", next, err)
	}

	unlocked, err := achievements.Unlocked(ctx, member.ID)
	if err != nil {
		t.Fatalf("Unlocked returned error: %v", err)
	}
	if len(unlocked) != 2 || !unlocked[0].Celebrated || unlocked[0].CelebratedAt == nil {
		t.Fatalf("unexpected unlocked achievements %+v", unlocked)
	}
}
