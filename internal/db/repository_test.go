package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsefeed/npcmind/internal/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *Repository {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewRepository(gdb)
}

func seedPersona(t *testing.T, repo *Repository, name string, active bool) *models.Persona {
	t.Helper()
	persona := &models.Persona{
		UserID:        100,
		PersonaName:   name,
		PersonaPrompt: "prompt",
		AIModel:       "gpt-4o-mini",
		PostTypes:     datatypes.NewJSONSlice([]string{"text"}),
		IsActive:      active,
	}
	if err := NewPersonaRepository(repo).Create(context.Background(), persona); err != nil {
		t.Fatalf("failed to seed persona: %v", err)
	}
	return persona
}

func TestPersonaNotFoundReturnsNil(t *testing.T) {
	repo := openTestDB(t)

	persona, err := NewPersonaRepository(repo).GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if persona != nil {
		t.Errorf("expected nil for unknown persona, got %+v", persona)
	}
}

func TestListActiveExcludesInactive(t *testing.T) {
	repo := openTestDB(t)
	seedPersona(t, repo, "active-one", true)
	seedPersona(t, repo, "sleeper", false)
	seedPersona(t, repo, "active-two", true)

	active, err := NewPersonaRepository(repo).ListActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active personas, got %d", len(active))
	}
	for _, persona := range active {
		if !persona.IsActive {
			t.Errorf("inactive persona %q in active listing", persona.PersonaName)
		}
	}
}

func TestPersonaDeleteCascadesQueueItems(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, "doomed", true)

	queue := NewQueueRepository(repo)
	for i := 0; i < 2; i++ {
		item := &models.QueueItem{
			PersonaID:    persona.ID,
			Content:      "content",
			PostType:     "text",
			ScheduledFor: testNow,
			Status:       models.QueueStatusPending,
		}
		if err := queue.Create(context.Background(), item); err != nil {
			t.Fatalf("failed to seed item: %v", err)
		}
	}

	if err := NewPersonaRepository(repo).Delete(context.Background(), persona.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := queue.CountPending(context.Background(), persona.ID)
	if err != nil {
		t.Fatalf("failed to count pending: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 queue items after persona delete, got %d", count)
	}
}

func TestQueueListFilters(t *testing.T) {
	repo := openTestDB(t)
	first := seedPersona(t, repo, "first", true)
	second := seedPersona(t, repo, "second", true)

	queue := NewQueueRepository(repo)
	seed := func(personaID int64, status string, at time.Time) {
		item := &models.QueueItem{
			PersonaID:    personaID,
			Content:      "content",
			PostType:     "text",
			ScheduledFor: at,
			Status:       status,
		}
		if err := queue.Create(context.Background(), item); err != nil {
			t.Fatalf("failed to seed item: %v", err)
		}
	}
	seed(first.ID, models.QueueStatusPending, testNow.Add(2*time.Hour))
	seed(first.ID, models.QueueStatusPending, testNow.Add(time.Hour))
	seed(first.ID, models.QueueStatusFailed, testNow.Add(3*time.Hour))
	seed(second.ID, models.QueueStatusPending, testNow.Add(4*time.Hour))

	items, total, err := queue.List(context.Background(), QueueFilter{PersonaID: first.ID, Status: models.QueueStatusPending})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("got %d items / total %d, want 2 / 2", len(items), total)
	}
	if !items[0].ScheduledFor.Before(items[1].ScheduledFor) {
		t.Error("items not ordered by scheduled_for ascending")
	}

	items, total, err = queue.List(context.Background(), QueueFilter{Limit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 4 || len(items) != 3 {
		t.Errorf("got %d items / total %d, want 3 / 4", len(items), total)
	}
}

func TestGetPendingReturnsPastAndFuture(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, "mixed", true)

	queue := NewQueueRepository(repo)
	seed := func(status string, at time.Time) {
		item := &models.QueueItem{
			PersonaID:    persona.ID,
			Content:      "content",
			PostType:     "text",
			ScheduledFor: at,
			Status:       status,
		}
		if err := queue.Create(context.Background(), item); err != nil {
			t.Fatalf("failed to seed item: %v", err)
		}
	}
	seed(models.QueueStatusPending, testNow.Add(-5*time.Hour))
	seed(models.QueueStatusPending, testNow.Add(5*time.Hour))
	seed(models.QueueStatusPublished, testNow.Add(-3*time.Hour))
	seed(models.QueueStatusFailed, testNow.Add(-time.Hour))

	pending, err := queue.GetPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected overdue and future pending items only, got %d", len(pending))
	}
	for _, item := range pending {
		if item.Status != models.QueueStatusPending {
			t.Errorf("non-pending item %d (%s) in pending listing", item.ID, item.Status)
		}
	}
	if !pending[0].ScheduledFor.Before(pending[1].ScheduledFor) {
		t.Error("pending items not in ascending order")
	}
}

func TestEngagementCountWindow(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, "social", true)

	engagement := NewEngagementRepository(repo)
	seed := func(action, status string, at time.Time) {
		entry := &models.EngagementLog{
			PersonaID:    persona.ID,
			ActionType:   action,
			TargetPostID: 1,
			Status:       status,
			CreatedAt:    at,
		}
		if err := engagement.Create(context.Background(), entry); err != nil {
			t.Fatalf("failed to seed entry: %v", err)
		}
	}

	dayStart := testNow.Truncate(24 * time.Hour)
	seed(models.ActionLike, models.EngagementCompleted, dayStart.Add(time.Hour))
	seed(models.ActionLike, models.EngagementCompleted, dayStart.Add(2*time.Hour))
	seed(models.ActionLike, models.EngagementFailed, dayStart.Add(3*time.Hour))
	seed(models.ActionComment, models.EngagementCompleted, dayStart.Add(4*time.Hour))
	seed(models.ActionLike, models.EngagementCompleted, dayStart.Add(-2*time.Hour))

	count, err := engagement.CountCompletedBetween(context.Background(), persona.ID, models.ActionLike, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Failed attempts, other actions and yesterday's likes are all excluded
	if count != 2 {
		t.Errorf("completed likes today = %d, want 2", count)
	}
}

func TestRecentCandidatesExcludesAuthorAndFiltersType(t *testing.T) {
	repo := openTestDB(t)
	posts := NewPostRepository(repo)

	seed := func(authorID int64, postType string) {
		if err := posts.Create(context.Background(), &models.Post{
			AuthorID: authorID,
			Content:  "content",
			PostType: postType,
		}); err != nil {
			t.Fatalf("failed to seed post: %v", err)
		}
	}
	seed(100, "text")
	seed(200, "text")
	seed(200, "image")
	seed(300, "text")

	candidates, err := posts.RecentCandidates(context.Background(), 100, []string{"text"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	for _, post := range candidates {
		if post.AuthorID == 100 {
			t.Error("candidate authored by excluded user")
		}
		if post.PostType != "text" {
			t.Errorf("candidate of type %q, want text", post.PostType)
		}
	}
}

func TestPublishedBetween(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, "history", true)

	queue := NewQueueRepository(repo)
	seed := func(at time.Time) {
		item := &models.QueueItem{
			PersonaID:    persona.ID,
			Content:      "content",
			PostType:     "text",
			ScheduledFor: at,
			Status:       models.QueueStatusPublished,
			PublishedAt:  sql.NullTime{Time: at, Valid: true},
		}
		if err := queue.Create(context.Background(), item); err != nil {
			t.Fatalf("failed to seed item: %v", err)
		}
	}
	seed(testNow.Add(-2 * time.Hour))
	seed(testNow.Add(-30 * time.Hour))

	published, err := queue.PublishedBetween(context.Background(), testNow.Add(-24*time.Hour), testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(published) != 1 {
		t.Errorf("expected 1 item inside window, got %d", len(published))
	}
}
