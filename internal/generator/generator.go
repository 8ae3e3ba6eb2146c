package generator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsefeed/npcmind/internal/db"
	"github.com/pulsefeed/npcmind/internal/genai"
	"github.com/pulsefeed/npcmind/internal/models"
	"github.com/pulsefeed/npcmind/internal/scheduler"
	"github.com/pulsefeed/npcmind/internal/storage"
	"github.com/pulsefeed/npcmind/pkg/logging"
	"github.com/pulsefeed/npcmind/pkg/telemetry"
)

var (
	// ErrPersonaNotFound is returned when the persona does not exist
	ErrPersonaNotFound = errors.New("persona not found")
	// ErrPersonaInactive is returned when the persona is deactivated
	ErrPersonaInactive = errors.New("persona is inactive")
)

// How many of this run's contents ride along as the anti-repetition signal
const repetitionWindow = 5

// Generator produces queue items, comments and visual identities for personas
type Generator struct {
	personas  *db.PersonaRepository
	queue     *db.QueueRepository
	provider  genai.Provider
	uploader  storage.Uploader
	callDelay time.Duration
	rng       *rand.Rand
	now       func() time.Time
	logger    *zap.Logger
}

// GenerationResult reports a (possibly partial) generation run
type GenerationResult struct {
	Items  []*models.QueueItem `json:"items"`
	Errors []string            `json:"errors"`
}

// New creates a content generator. uploader may be nil when object storage is
// not configured; the reference-image path then fails cleanly.
func New(repo *db.Repository, provider genai.Provider, uploader storage.Uploader, callDelay time.Duration, rng *rand.Rand, now func() time.Time) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{
		personas:  db.NewPersonaRepository(repo),
		queue:     db.NewQueueRepository(repo),
		provider:  provider,
		uploader:  uploader,
		callDelay: callDelay,
		rng:       rng,
		now:       now,
		logger:    logging.GetLogger().With(zap.String("component", "generator")),
	}
}

// GeneratePostsForNPC generates count posts for one persona and appends them
// to the queue as pending items. Provider failures on individual items are
// recorded in the result and do not stop the run. Generation is strictly
// sequential with a delay between provider calls.
func (g *Generator) GeneratePostsForNPC(ctx context.Context, personaID int64, count int) (*GenerationResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "generator.generate_posts")
	defer span.End()

	if count < 1 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", scheduler.ErrInvalidConfiguration, count)
	}

	persona, err := g.personas.GetByID(ctx, personaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load persona %d: %w", personaID, err)
	}
	if persona == nil {
		return nil, ErrPersonaNotFound
	}
	if !persona.IsActive {
		return nil, ErrPersonaInactive
	}

	// All timestamps are computed up front so a provider failure mid-run
	// cannot shift the remaining slots.
	times, err := scheduler.CalculateMultiplePostTimes(persona.PostingTimes.Data(), count, g.now(), g.rng)
	if err != nil {
		return nil, err
	}

	postTypes := []string(persona.PostTypes)
	if len(postTypes) == 0 {
		postTypes = []string{"text"}
	}

	result := &GenerationResult{}
	var recent []string

	for i, scheduledFor := range times {
		if i > 0 {
			if err := g.wait(ctx); err != nil {
				return result, err
			}
		}

		req := genai.PostRequest{
			PersonaName:   persona.PersonaName,
			PersonaPrompt: persona.PersonaPrompt,
			Topics:        []string(persona.Topics),
			Tone:          persona.Tone,
			PostType:      postTypes[g.rng.Intn(len(postTypes))],
			Temperature:   persona.Temperature,
			Model:         persona.AIModel,
			PreviousPosts: lastN(recent, repetitionWindow),
		}

		generated, err := g.provider.GeneratePost(ctx, req)
		if err != nil {
			g.logger.Warn("Post generation failed",
				zap.Int64("persona_id", persona.ID),
				zap.Int("item", i+1),
				zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i+1, err))
			continue
		}

		promptJSON, _ := json.Marshal(req)
		item := &models.QueueItem{
			PersonaID:        persona.ID,
			Content:          generated.Content,
			PostType:         generated.PostType,
			ScheduledFor:     scheduledFor,
			Status:           models.QueueStatusPending,
			GenerationPrompt: string(promptJSON),
			AIModelUsed:      persona.AIModel,
		}
		if err := g.queue.Create(ctx, item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: failed to enqueue: %v", i+1, err))
			continue
		}

		recent = append(recent, generated.Content)
		result.Items = append(result.Items, item)
	}

	g.logger.Info("Generation run finished",
		zap.Int64("persona_id", persona.ID),
		zap.Int("requested", count),
		zap.Int("generated", len(result.Items)),
		zap.Int("failed", len(result.Errors)))

	return result, nil
}

// GenerateCommentForPost produces one comment as the persona on the given
// post. Used synchronously by the engagement phase.
func (g *Generator) GenerateCommentForPost(ctx context.Context, persona *models.Persona, post *models.Post) (string, error) {
	settings := persona.EngagementSettings.Data()

	generated, err := g.provider.GenerateComment(ctx, genai.CommentRequest{
		PersonaName:     persona.PersonaName,
		PersonaPrompt:   persona.PersonaPrompt,
		EngagementStyle: settings.EngagementStyle,
		PostContent:     post.Content,
		PostType:        post.PostType,
		Temperature:     persona.Temperature,
		Model:           persona.AIModel,
	})
	if err != nil {
		return "", err
	}
	return generated.Content, nil
}

// DeriveVisualPersona asks the provider for a structured visual descriptor of
// the persona and stores it on the profile
func (g *Generator) DeriveVisualPersona(ctx context.Context, personaID int64) (*genai.VisualPersona, error) {
	persona, err := g.personas.GetByID(ctx, personaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load persona %d: %w", personaID, err)
	}
	if persona == nil {
		return nil, ErrPersonaNotFound
	}

	vp, err := g.provider.DeriveVisualPersona(ctx, persona.PersonaPrompt)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(vp)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize visual persona: %w", err)
	}
	persona.VisualPersona = sql.NullString{String: string(raw), Valid: true}
	if err := g.personas.Update(ctx, persona); err != nil {
		return nil, fmt.Errorf("failed to store visual persona: %w", err)
	}

	return vp, nil
}

// GenerateReferenceImage renders a reference image for the persona, uploads
// it to object storage and binds the URL to the profile
func (g *Generator) GenerateReferenceImage(ctx context.Context, personaID int64) (string, error) {
	if g.uploader == nil {
		return "", fmt.Errorf("object storage is not configured")
	}

	persona, err := g.personas.GetByID(ctx, personaID)
	if err != nil {
		return "", fmt.Errorf("failed to load persona %d: %w", personaID, err)
	}
	if persona == nil {
		return "", ErrPersonaNotFound
	}

	prompt := persona.PersonaPrompt
	if persona.VisualPersona.Valid {
		var vp genai.VisualPersona
		if err := json.Unmarshal([]byte(persona.VisualPersona.String), &vp); err == nil {
			prompt = fmt.Sprintf("Portrait photo of a %s person, %s. Appearance: %s. Style: %s. Setting: %s.",
				vp.AgeRange, vp.Gender, vp.Appearance, vp.Style, vp.Setting)
		}
	}

	img, err := g.provider.GenerateImage(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to render reference image: %w", err)
	}

	key := fmt.Sprintf("personas/%d/reference-%s.png", persona.ID, uuid.NewString())
	url, err := g.uploader.Upload(ctx, key, img, "image/png")
	if err != nil {
		return "", fmt.Errorf("failed to upload reference image: %w", err)
	}

	persona.ReferenceImageURL = url
	if err := g.personas.Update(ctx, persona); err != nil {
		return "", fmt.Errorf("failed to bind reference image: %w", err)
	}

	return url, nil
}

// CallDelay exposes the configured inter-call delay so the engagement phase
// can pace its own provider calls identically
func (g *Generator) CallDelay() time.Duration {
	return g.callDelay
}

// wait pauses between provider calls or until the context is cancelled
func (g *Generator) wait(ctx context.Context) error {
	if g.callDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(g.callDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return append([]string(nil), s...)
	}
	return append([]string(nil), s[len(s)-n:]...)
}
