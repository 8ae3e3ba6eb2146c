package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulsefeed/npcmind/internal/db"
	"github.com/pulsefeed/npcmind/internal/genai"
	"github.com/pulsefeed/npcmind/internal/models"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *db.Repository {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// A single connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.NewRepository(gdb)
}

func seedPersona(t *testing.T, repo *db.Repository, active bool) *models.Persona {
	t.Helper()
	persona := &models.Persona{
		UserID:        100,
		PersonaName:   "Maya",
		PersonaPrompt: "A cheerful amateur astronomer.",
		AIModel:       "gpt-4o-mini",
		Temperature:   0.9,
		Tone:          "casual",
		Topics:        datatypes.NewJSONSlice([]string{"astronomy", "coffee"}),
		PostTypes:     datatypes.NewJSONSlice([]string{"text"}),
		PostingTimes: datatypes.NewJSONType(models.PostingTimes{
			Mode:        models.ModePostsPerDay,
			PostsPerDay: 3,
			ActiveHours: models.ActiveHours{Start: 8, End: 22},
			Timezone:    "UTC",
		}),
		IsActive: active,
	}
	if err := db.NewPersonaRepository(repo).Create(context.Background(), persona); err != nil {
		t.Fatalf("failed to seed persona: %v", err)
	}
	return persona
}

// fakeProvider counts calls and can fail selected post generations
type fakeProvider struct {
	postCalls    int
	failOn       map[int]bool
	lastPostReq  genai.PostRequest
	comment      string
	commentErr   error
	visual       *genai.VisualPersona
	visualErr    error
	image        []byte
	imagePrompts []string
}

func (f *fakeProvider) GeneratePost(_ context.Context, req genai.PostRequest) (*genai.PostResult, error) {
	f.postCalls++
	f.lastPostReq = req
	if f.failOn[f.postCalls] {
		return nil, errors.New("provider unavailable")
	}
	return &genai.PostResult{
		Content:  fmt.Sprintf("post number %d about %s", f.postCalls, req.PostType),
		PostType: req.PostType,
	}, nil
}

func (f *fakeProvider) GenerateComment(_ context.Context, _ genai.CommentRequest) (*genai.CommentResult, error) {
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	return &genai.CommentResult{Content: f.comment}, nil
}

func (f *fakeProvider) DeriveVisualPersona(_ context.Context, _ string) (*genai.VisualPersona, error) {
	if f.visualErr != nil {
		return nil, f.visualErr
	}
	return f.visual, nil
}

func (f *fakeProvider) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	f.imagePrompts = append(f.imagePrompts, prompt)
	return f.image, nil
}

// fakeUploader records uploads and returns deterministic URLs
type fakeUploader struct {
	keys []string
}

func (f *fakeUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func newTestGenerator(repo *db.Repository, provider genai.Provider, uploader *fakeUploader) *Generator {
	// A typed nil pointer would make the interface non-nil
	if uploader == nil {
		return New(repo, provider, nil, 0, rand.New(rand.NewSource(1)), func() time.Time { return testNow })
	}
	return New(repo, provider, uploader, 0, rand.New(rand.NewSource(1)), func() time.Time { return testNow })
}

func TestGeneratePostsCreatesPendingItems(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, true)
	provider := &fakeProvider{}
	gen := newTestGenerator(repo, provider, nil)

	result, err := gen.GeneratePostsForNPC(context.Background(), persona.ID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result.Items))
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}

	pending, err := db.NewQueueRepository(repo).GetPending(context.Background())
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending items, got %d", len(pending))
	}
	for i, item := range pending {
		if item.Status != models.QueueStatusPending {
			t.Errorf("item %d status = %s, want pending", i, item.Status)
		}
		if item.PersonaID != persona.ID {
			t.Errorf("item %d persona = %d, want %d", i, item.PersonaID, persona.ID)
		}
		if item.Content == "" {
			t.Errorf("item %d has empty content", i)
		}
		if item.GenerationPrompt == "" {
			t.Errorf("item %d missing generation prompt", i)
		}
		if !item.ScheduledFor.After(testNow) {
			t.Errorf("item %d scheduled in the past: %s", i, item.ScheduledFor)
		}
	}

	// Slots must not collide
	seen := map[time.Time]bool{}
	for _, item := range pending {
		if seen[item.ScheduledFor] {
			t.Errorf("duplicate scheduled time %s", item.ScheduledFor)
		}
		seen[item.ScheduledFor] = true
	}
}

func TestGeneratePostsPartialFailure(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, true)
	provider := &fakeProvider{failOn: map[int]bool{2: true}}
	gen := newTestGenerator(repo, provider, nil)

	result, err := gen.GeneratePostsForNPC(context.Background(), persona.ID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(result.Items))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(result.Errors))
	}

	pending, err := db.NewQueueRepository(repo).GetPending(context.Background())
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending items after partial failure, got %d", len(pending))
	}
}

func TestGeneratePostsCarriesRecentContents(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, true)
	provider := &fakeProvider{}
	gen := newTestGenerator(repo, provider, nil)

	if _, err := gen.GeneratePostsForNPC(context.Background(), persona.ID, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The final request must carry the two contents generated before it
	if len(provider.lastPostReq.PreviousPosts) != 2 {
		t.Errorf("expected 2 previous posts on final request, got %d", len(provider.lastPostReq.PreviousPosts))
	}
}

func TestGeneratePostsUnknownPersona(t *testing.T) {
	repo := openTestDB(t)
	gen := newTestGenerator(repo, &fakeProvider{}, nil)

	_, err := gen.GeneratePostsForNPC(context.Background(), 9999, 1)
	if !errors.Is(err, ErrPersonaNotFound) {
		t.Errorf("expected ErrPersonaNotFound, got %v", err)
	}
}

func TestGeneratePostsInactivePersona(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, false)
	gen := newTestGenerator(repo, &fakeProvider{}, nil)

	_, err := gen.GeneratePostsForNPC(context.Background(), persona.ID, 1)
	if !errors.Is(err, ErrPersonaInactive) {
		t.Errorf("expected ErrPersonaInactive, got %v", err)
	}
}

func TestGenerateCommentForPost(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, true)
	provider := &fakeProvider{comment: "Great shot of Saturn!"}
	gen := newTestGenerator(repo, provider, nil)

	post := &models.Post{AuthorID: 200, Content: "Saturn through my telescope tonight", PostType: "image"}
	comment, err := gen.GenerateCommentForPost(context.Background(), persona, post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comment != "Great shot of Saturn!" {
		t.Errorf("unexpected comment: %q", comment)
	}
}

func TestDeriveVisualPersonaStoresDescriptor(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, true)
	provider := &fakeProvider{visual: &genai.VisualPersona{
		Gender:     "female",
		AgeRange:   "30s",
		Appearance: "curly dark hair, round glasses",
		Style:      "flannel and jeans",
		Setting:    "backyard observatory",
	}}
	gen := newTestGenerator(repo, provider, nil)

	vp, err := gen.DeriveVisualPersona(context.Background(), persona.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vp.Appearance != "curly dark hair, round glasses" {
		t.Errorf("unexpected appearance: %q", vp.Appearance)
	}

	stored, err := db.NewPersonaRepository(repo).GetByID(context.Background(), persona.ID)
	if err != nil {
		t.Fatalf("failed to reload persona: %v", err)
	}
	if !stored.VisualPersona.Valid || stored.VisualPersona.String == "" {
		t.Errorf("visual persona not stored on profile")
	}
}

func TestGenerateReferenceImage(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, true)
	provider := &fakeProvider{
		visual: &genai.VisualPersona{Appearance: "curly dark hair"},
		image:  []byte{0x89, 0x50, 0x4e, 0x47},
	}
	uploader := &fakeUploader{}
	gen := newTestGenerator(repo, provider, uploader)

	if _, err := gen.DeriveVisualPersona(context.Background(), persona.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	url, err := gen.GenerateReferenceImage(context.Background(), persona.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url == "" {
		t.Fatal("expected a non-empty image URL")
	}
	if len(uploader.keys) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(uploader.keys))
	}

	stored, err := db.NewPersonaRepository(repo).GetByID(context.Background(), persona.ID)
	if err != nil {
		t.Fatalf("failed to reload persona: %v", err)
	}
	if stored.ReferenceImageURL != url {
		t.Errorf("reference image URL not bound: %q vs %q", stored.ReferenceImageURL, url)
	}
}

func TestGenerateReferenceImageWithoutStorage(t *testing.T) {
	repo := openTestDB(t)
	persona := seedPersona(t, repo, true)
	gen := newTestGenerator(repo, &fakeProvider{}, nil)

	if _, err := gen.GenerateReferenceImage(context.Background(), persona.ID); err == nil {
		t.Error("expected an error when object storage is not configured")
	}
}
