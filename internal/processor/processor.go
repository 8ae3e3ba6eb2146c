package processor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulsefeed/npcmind/internal/db"
	"github.com/pulsefeed/npcmind/internal/generator"
	"github.com/pulsefeed/npcmind/internal/models"
	"github.com/pulsefeed/npcmind/internal/scheduler"
	"github.com/pulsefeed/npcmind/pkg/config"
	"github.com/pulsefeed/npcmind/pkg/logging"
	"github.com/pulsefeed/npcmind/pkg/telemetry"
)

// Processor runs the publish, engagement, refill and report phases of one
// processing pass
type Processor struct {
	personas   *db.PersonaRepository
	queue      *db.QueueRepository
	posts      *db.PostRepository
	engagement *db.EngagementRepository
	gen        *generator.Generator
	callDelay  time.Duration
	overfetch  int
	refillMult int
	now        func() time.Time
	logger     *zap.Logger
}

// RefillResult summarizes the refill phase of a pass
type RefillResult struct {
	NPCRefilled    int `json:"npcRefilled"`
	PostsGenerated int `json:"postsGenerated"`
}

// Result is the report returned by one processing pass
type Result struct {
	PostsPublished int          `json:"postsPublished"`
	PostsFailed    int          `json:"postsFailed"`
	LikesGiven     int          `json:"likesGiven"`
	CommentsGiven  int          `json:"commentsGiven"`
	Errors         []string     `json:"errors"`
	QueueRefill    RefillResult `json:"queueRefill"`
}

// New creates a processor
func New(repo *db.Repository, gen *generator.Generator, cfg *config.ProcessorConfig, now func() time.Time) *Processor {
	if now == nil {
		now = time.Now
	}
	overfetch := cfg.CandidateOverfetch
	if overfetch < 1 {
		overfetch = 2
	}
	refillMult := cfg.RefillMultiplier
	if refillMult < 1 {
		refillMult = 2
	}
	return &Processor{
		personas:   db.NewPersonaRepository(repo),
		queue:      db.NewQueueRepository(repo),
		posts:      db.NewPostRepository(repo),
		engagement: db.NewEngagementRepository(repo),
		gen:        gen,
		callDelay:  cfg.ProviderCallDelay,
		overfetch:  overfetch,
		refillMult: refillMult,
		now:        now,
		logger:     logging.WithComponent("processor"),
	}
}

// Run executes one sequential processing pass. Item-level failures are
// recorded in the result; only setup-level failures return an error.
//
// Overlapping passes are not mutually excluded. Two concurrent passes can
// both read the same pending item before either marks it published, so the
// trigger cadence must keep passes from overlapping.
func (p *Processor) Run(ctx context.Context) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "processor.run")
	defer span.End()

	started := p.now()
	result := &Result{Errors: []string{}}

	pending, err := p.queue.GetPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending queue items: %w", err)
	}
	active, err := p.personas.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active personas: %w", err)
	}

	p.publishPhase(ctx, pending, result)
	p.engagementPhase(ctx, active, result)
	p.refillPhase(ctx, active, result)

	p.logger.Info("Processing pass finished",
		zap.Int("published", result.PostsPublished),
		zap.Int("failed", result.PostsFailed),
		zap.Int("likes", result.LikesGiven),
		zap.Int("comments", result.CommentsGiven),
		zap.Int("refilled", result.QueueRefill.NPCRefilled),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("took", p.now().Sub(started)))

	return result, nil
}

// publishPhase publishes every pending item as a real post
func (p *Processor) publishPhase(ctx context.Context, pending []*models.QueueItem, result *Result) {
	if len(pending) == 0 {
		return
	}

	ids := make([]int64, 0, len(pending))
	seen := map[int64]bool{}
	for _, item := range pending {
		if !seen[item.PersonaID] {
			seen[item.PersonaID] = true
			ids = append(ids, item.PersonaID)
		}
	}
	personas, err := p.personas.GetByIDs(ctx, ids)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("publish: failed to load personas: %v", err))
		return
	}
	byID := make(map[int64]*models.Persona, len(personas))
	for _, persona := range personas {
		byID[persona.ID] = persona
	}

	for _, item := range pending {
		persona := byID[item.PersonaID]
		if persona == nil {
			p.failItem(ctx, item, fmt.Sprintf("persona %d not found", item.PersonaID), result)
			continue
		}
		// Inactive personas are excluded from processing; their items stay
		// pending until reactivation or deletion.
		if !persona.IsActive {
			continue
		}

		post := &models.Post{
			AuthorID: persona.UserID,
			Content:  item.Content,
			PostType: item.PostType,
		}
		if err := p.posts.Create(ctx, post); err != nil {
			p.failItem(ctx, item, err.Error(), result)
			continue
		}

		publishedAt := p.now()
		item.Status = models.QueueStatusPublished
		item.PublishedPostID = sql.NullInt64{Int64: post.ID, Valid: true}
		item.PublishedAt = sql.NullTime{Time: publishedAt, Valid: true}
		if err := p.queue.Update(ctx, item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("queue item %d: published but status update failed: %v", item.ID, err))
			continue
		}

		persona.TotalPostsGenerated++
		persona.LastActiveAt = publishedAt
		if err := p.personas.Update(ctx, persona); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persona %d: counter update failed: %v", persona.ID, err))
		}

		result.PostsPublished++
	}
}

func (p *Processor) failItem(ctx context.Context, item *models.QueueItem, msg string, result *Result) {
	item.Status = models.QueueStatusFailed
	item.ErrorMessage = sql.NullString{String: msg, Valid: true}
	if err := p.queue.Update(ctx, item); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("queue item %d: failed to record failure: %v", item.ID, err))
	} else {
		result.Errors = append(result.Errors, fmt.Sprintf("queue item %d: %s", item.ID, msg))
	}
	result.PostsFailed++
}

// engagementPhase runs auto-likes and auto-comments under the daily caps
func (p *Processor) engagementPhase(ctx context.Context, personas []*models.Persona, result *Result) {
	// Daily caps are derived from the log over the current UTC day
	dayStart := p.now().UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	for _, persona := range personas {
		settings := persona.EngagementSettings.Data()
		if !settings.AutoLike && !settings.AutoComment {
			continue
		}

		likesLeft, err := p.remainingQuota(ctx, persona.ID, models.ActionLike, settings.AutoLike, settings.LikesPerDay, dayStart, dayEnd)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persona %d: %v", persona.ID, err))
			continue
		}
		commentsLeft, err := p.remainingQuota(ctx, persona.ID, models.ActionComment, settings.AutoComment, settings.CommentsPerDay, dayStart, dayEnd)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persona %d: %v", persona.ID, err))
			continue
		}
		if likesLeft <= 0 && commentsLeft <= 0 {
			continue
		}

		quota := likesLeft
		if commentsLeft > quota {
			quota = commentsLeft
		}
		candidates, err := p.posts.RecentCandidates(ctx, persona.UserID, settings.CommentOnTypes, p.overfetch*quota)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persona %d: failed to fetch candidates: %v", persona.ID, err))
			continue
		}

		acted := false
		for _, candidate := range candidates {
			if likesLeft <= 0 && commentsLeft <= 0 {
				break
			}
			if likesLeft > 0 {
				done, err := p.likePost(ctx, persona, candidate)
				if err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("persona %d like on post %d: %v", persona.ID, candidate.ID, err))
				} else if done {
					likesLeft--
					acted = true
					result.LikesGiven++
				}
			}
			if commentsLeft > 0 {
				done, err := p.commentOnPost(ctx, persona, candidate)
				if err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("persona %d comment on post %d: %v", persona.ID, candidate.ID, err))
				} else if done {
					commentsLeft--
					acted = true
					result.CommentsGiven++
				}
			}
		}

		if acted {
			persona.LastActiveAt = p.now()
			if err := p.personas.Update(ctx, persona); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("persona %d: counter update failed: %v", persona.ID, err))
			}
		}
	}
}

// remainingQuota returns how many more actions of one type the persona may
// take today, or zero when the action is disabled
func (p *Processor) remainingQuota(ctx context.Context, personaID int64, actionType string, enabled bool, perDay int, from, to time.Time) (int, error) {
	if !enabled || perDay <= 0 {
		return 0, nil
	}
	done, err := p.engagement.CountCompletedBetween(ctx, personaID, actionType, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s actions: %w", actionType, err)
	}
	remaining := perDay - int(done)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// likePost likes the candidate unless the persona already liked it. Returns
// true when a new like was recorded.
func (p *Processor) likePost(ctx context.Context, persona *models.Persona, post *models.Post) (bool, error) {
	exists, err := p.posts.LikeExists(ctx, post.ID, persona.UserID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := p.posts.CreateLike(ctx, &models.Like{PostID: post.ID, UserID: persona.UserID}); err != nil {
		p.logEngagement(ctx, &models.EngagementLog{
			PersonaID:    persona.ID,
			ActionType:   models.ActionLike,
			TargetPostID: post.ID,
			Status:       models.EngagementFailed,
			ErrorMessage: sql.NullString{String: err.Error(), Valid: true},
		})
		return false, err
	}

	p.logEngagement(ctx, &models.EngagementLog{
		PersonaID:    persona.ID,
		ActionType:   models.ActionLike,
		TargetPostID: post.ID,
		Status:       models.EngagementCompleted,
	})
	persona.TotalLikesGiven++
	return true, nil
}

// commentOnPost generates and inserts a comment unless the persona already
// commented on the candidate. Returns true when a new comment was recorded.
func (p *Processor) commentOnPost(ctx context.Context, persona *models.Persona, post *models.Post) (bool, error) {
	exists, err := p.posts.CommentExists(ctx, post.ID, persona.UserID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := p.wait(ctx); err != nil {
		return false, err
	}

	content, err := p.gen.GenerateCommentForPost(ctx, persona, post)
	if err != nil {
		p.logEngagement(ctx, &models.EngagementLog{
			PersonaID:    persona.ID,
			ActionType:   models.ActionComment,
			TargetPostID: post.ID,
			Status:       models.EngagementFailed,
			ErrorMessage: sql.NullString{String: err.Error(), Valid: true},
		})
		return false, err
	}

	comment := &models.Comment{PostID: post.ID, UserID: persona.UserID, Content: content}
	if err := p.posts.CreateComment(ctx, comment); err != nil {
		p.logEngagement(ctx, &models.EngagementLog{
			PersonaID:    persona.ID,
			ActionType:   models.ActionComment,
			TargetPostID: post.ID,
			Status:       models.EngagementFailed,
			ErrorMessage: sql.NullString{String: err.Error(), Valid: true},
		})
		return false, err
	}

	p.logEngagement(ctx, &models.EngagementLog{
		PersonaID:        persona.ID,
		ActionType:       models.ActionComment,
		TargetPostID:     post.ID,
		Status:           models.EngagementCompleted,
		CommentContent:   sql.NullString{String: content, Valid: true},
		CreatedCommentID: sql.NullInt64{Int64: comment.ID, Valid: true},
	})
	persona.TotalCommentsGiven++
	return true, nil
}

func (p *Processor) logEngagement(ctx context.Context, entry *models.EngagementLog) {
	if err := p.engagement.Create(ctx, entry); err != nil {
		p.logger.Warn("Failed to append engagement log entry",
			zap.Int64("persona_id", entry.PersonaID),
			zap.String("action", entry.ActionType),
			zap.Error(err))
	}
}

// refillPhase tops up each active persona's pending backlog to the target
// buffer so nobody runs dry between passes
func (p *Processor) refillPhase(ctx context.Context, personas []*models.Persona, result *Result) {
	for _, persona := range personas {
		pendingCount, err := p.queue.CountPending(ctx, persona.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persona %d: failed to count pending items: %v", persona.ID, err))
			continue
		}

		perCycle, err := scheduler.PostsPerCycle(persona.PostingTimes.Data(), p.now())
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persona %d: %v", persona.ID, err))
			continue
		}

		target := p.refillMult * perCycle
		shortfall := target - int(pendingCount)
		if shortfall <= 0 {
			continue
		}

		generated, err := p.gen.GeneratePostsForNPC(ctx, persona.ID, shortfall)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persona %d: refill failed: %v", persona.ID, err))
			continue
		}
		for _, msg := range generated.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("persona %d: refill: %s", persona.ID, msg))
		}

		result.QueueRefill.NPCRefilled++
		result.QueueRefill.PostsGenerated += len(generated.Items)
	}
}

// wait applies the inter-call delay before provider-backed engagement calls
func (p *Processor) wait(ctx context.Context) error {
	if p.callDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.callDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
