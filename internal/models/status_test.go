package models

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from MigrationStatus
		to   MigrationStatus
		want bool
	}{
		{"pending to dry run queued", StatusPending, StatusDryRunQueued, true},
		{"pending straight to migration queue", StatusPending, StatusQueuedForMigration, true},
		{"pending cannot skip to migrating", StatusPending, StatusMigratingContent, false},
		{"dry run queue to in progress", StatusDryRunQueued, StatusDryRunInProgress, true},
		{"dry run in progress to complete", StatusDryRunInProgress, StatusDryRunComplete, true},
		{"dry run failed retries as dry run", StatusDryRunFailed, StatusDryRunQueued, true},
		{"dry run failed cannot jump to migration", StatusDryRunFailed, StatusQueuedForMigration, false},
		{"migration failed retries as migration", StatusMigrationFailed, StatusQueuedForMigration, true},
		{"migration failed can re-dry-run", StatusMigrationFailed, StatusDryRunQueued, true},
		{"complete is terminal", StatusComplete, StatusPending, false},
		{"rolled back can requeue", StatusRolledBack, StatusQueuedForMigration, true},
		{"phases move forward only", StatusPostMigration, StatusPreMigration, false},
		{"unknown status has no transitions", MigrationStatus("bogus"), StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTransitionTableClosed(t *testing.T) {
	// Every status reachable from the table must itself be in the table.
	for from, nexts := range repoTransitions {
		for _, to := range nexts {
			if !IsValidStatus(to) {
				t.Errorf("transition %s -> %s targets a status missing from the table", from, to)
			}
		}
	}
	for from, nexts := range batchTransitions {
		for _, to := range nexts {
			if !IsValidBatchStatus(to) {
				t.Errorf("batch transition %s -> %s targets a status missing from the table", from, to)
			}
		}
	}
}

func TestNeedsDryRun(t *testing.T) {
	needs := []MigrationStatus{StatusPending, StatusDryRunFailed, StatusMigrationFailed, StatusRolledBack}
	for _, s := range needs {
		if !s.NeedsDryRun() {
			t.Errorf("%s should need a dry run", s)
		}
	}
	doesNot := []MigrationStatus{StatusDryRunComplete, StatusComplete, StatusMigratingContent, StatusDryRunQueued}
	for _, s := range doesNot {
		if s.NeedsDryRun() {
			t.Errorf("%s should not need a dry run", s)
		}
	}
}

func TestTierForScore(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, TierSimple},
		{5, TierSimple},
		{6, TierMedium},
		{10, TierMedium},
		{11, TierComplex},
		{17, TierComplex},
		{18, TierVeryComplex},
		{40, TierVeryComplex},
	}
	for _, tt := range tests {
		if got := TierForScore(tt.score); got != tt.want {
			t.Errorf("TierForScore(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestCanBeAssignedToBatch(t *testing.T) {
	repo := &Repository{FullName: "acme/widgets", Status: StatusPending}
	if ok, _ := repo.CanBeAssignedToBatch(); !ok {
		t.Error("pending repository should be assignable")
	}

	repo.Status = StatusMigratingContent
	if ok, reason := repo.CanBeAssignedToBatch(); ok || reason == "" {
		t.Error("in-flight repository should be rejected with a reason")
	}

	repo.Status = StatusPending
	repo.Validation = &RepositoryValidation{HasOversizedRepository: true}
	if ok, _ := repo.CanBeAssignedToBatch(); ok {
		t.Error("oversized repository should be rejected")
	}
}
