package coverage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulsefeed/npcmind/internal/cache"
	"github.com/pulsefeed/npcmind/internal/db"
	"github.com/pulsefeed/npcmind/internal/models"
	"github.com/pulsefeed/npcmind/pkg/logging"
	"github.com/pulsefeed/npcmind/pkg/telemetry"
)

const (
	windowDays = 7
	cacheTTL   = time.Minute
)

// Slot is one scheduled or published item inside an hour bucket
type Slot struct {
	QueueItemID int64  `json:"queue_item_id"`
	PersonaID   int64  `json:"persona_id"`
	PersonaName string `json:"persona_name"`
	PostType    string `json:"post_type"`
	Status      string `json:"status"`
}

// HourSummary aggregates one hour of day across the whole window
type HourSummary struct {
	Hour       int    `json:"hour"`
	Label      string `json:"label"`
	TotalPosts int    `json:"total_posts"`
	HasGap     bool   `json:"has_gap"`
}

// Stats holds the headline numbers of a coverage report
type Stats struct {
	TotalScheduled    int    `json:"totalScheduled"`
	TotalPublished    int    `json:"totalPublished"`
	HoursWithCoverage int    `json:"hoursWithCoverage"`
	BusiestHour       string `json:"busiestHour"`
}

// ScheduleData is the full coverage grid plus its aggregates. Coverage maps
// local date to hour label to the items bucketed there; every hour of the
// forward window is present even when empty, an empty slice marks a gap.
type ScheduleData struct {
	Coverage      map[string]map[string][]Slot `json:"coverage"`
	HourlySummary []HourSummary                `json:"hourlySummary"`
	TodayPosts    int                          `json:"todayPosts"`
	GapHours      []string                     `json:"gapHours"`
	Stats         Stats                        `json:"stats"`
}

// Reporter computes schedule coverage from the queue and publication history.
// Read-only; recomputed per request and briefly cached per timezone.
type Reporter struct {
	queue    *db.QueueRepository
	personas *db.PersonaRepository
	cache    *cache.Cache
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a coverage reporter. cache may be nil.
func New(repo *db.Repository, c *cache.Cache, now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{
		queue:    db.NewQueueRepository(repo),
		personas: db.NewPersonaRepository(repo),
		cache:    c,
		now:      now,
		logger:   logging.WithComponent("coverage"),
	}
}

// GetScheduleData builds the coverage grid in the given timezone: pending
// items over the next seven days plus publication history over the last seven
func (r *Reporter) GetScheduleData(ctx context.Context, loc *time.Location) (*ScheduleData, error) {
	ctx, span := telemetry.StartSpan(ctx, "coverage.get_schedule_data")
	defer span.End()

	if loc == nil {
		loc = time.UTC
	}

	cacheKey := cache.HashKey("schedule_data", loc.String())
	var cached ScheduleData
	if err := r.cache.GetJSON(cacheKey, &cached); err == nil {
		return &cached, nil
	}

	now := r.now()
	pending, err := r.queue.PendingBetween(ctx, now, now.Add(windowDays*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to load pending items: %w", err)
	}
	published, err := r.queue.PublishedBetween(ctx, now.Add(-windowDays*24*time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("failed to load publication history: %w", err)
	}

	names, err := r.personaNames(ctx, pending, published)
	if err != nil {
		return nil, err
	}

	data := &ScheduleData{
		Coverage: make(map[string]map[string][]Slot),
		Stats: Stats{
			TotalScheduled: len(pending),
			TotalPublished: len(published),
		},
	}

	// The forward window always carries all of its hour slots so empty
	// buckets are visible as gaps
	today := now.In(loc)
	for d := 0; d < windowDays; d++ {
		data.Coverage[dateKey(today.AddDate(0, 0, d))] = emptyDay()
	}

	todayKey := dateKey(today)
	for _, item := range pending {
		r.bucket(data, item, item.ScheduledFor.In(loc), names, todayKey)
	}
	for _, item := range published {
		if !item.PublishedAt.Valid {
			continue
		}
		r.bucket(data, item, item.PublishedAt.Time.In(loc), names, todayKey)
	}

	r.summarize(data)

	if err := r.cache.SetJSON(cacheKey, data, cacheTTL); err != nil && err != cache.ErrCacheDisabled {
		r.logger.Warn("Failed to cache schedule data", zap.Error(err))
	}

	return data, nil
}

// bucket places one item into its (local date, hour) cell
func (r *Reporter) bucket(data *ScheduleData, item *models.QueueItem, at time.Time, names map[int64]string, todayKey string) {
	day := dateKey(at)
	if data.Coverage[day] == nil {
		data.Coverage[day] = emptyDay()
	}
	hour := hourLabel(at.Hour())
	data.Coverage[day][hour] = append(data.Coverage[day][hour], Slot{
		QueueItemID: item.ID,
		PersonaID:   item.PersonaID,
		PersonaName: names[item.PersonaID],
		PostType:    item.PostType,
		Status:      item.Status,
	})
	if day == todayKey {
		data.TodayPosts++
	}
}

// summarize fills the hourly aggregates, gap list and headline stats
func (r *Reporter) summarize(data *ScheduleData) {
	totals := make([]int, 24)
	for _, day := range data.Coverage {
		for h := 0; h < 24; h++ {
			totals[h] += len(day[hourLabel(h)])
		}
	}

	busiest := 0
	data.HourlySummary = make([]HourSummary, 24)
	for h := 0; h < 24; h++ {
		gap := totals[h] == 0
		data.HourlySummary[h] = HourSummary{
			Hour:       h,
			Label:      hourLabel(h),
			TotalPosts: totals[h],
			HasGap:     gap,
		}
		if gap {
			data.GapHours = append(data.GapHours, hourLabel(h))
		}
		if totals[h] > totals[busiest] {
			busiest = h
		}
	}

	data.Stats.HoursWithCoverage = 24 - len(data.GapHours)
	data.Stats.BusiestHour = hourLabel(busiest)
}

// personaNames resolves the display name of every persona referenced by the
// bucketed items
func (r *Reporter) personaNames(ctx context.Context, pending, published []*models.QueueItem) (map[int64]string, error) {
	seen := map[int64]bool{}
	var ids []int64
	for _, item := range append(append([]*models.QueueItem{}, pending...), published...) {
		if !seen[item.PersonaID] {
			seen[item.PersonaID] = true
			ids = append(ids, item.PersonaID)
		}
	}

	personas, err := r.personas.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve persona names: %w", err)
	}
	names := make(map[int64]string, len(personas))
	for _, persona := range personas {
		names[persona.ID] = persona.PersonaName
	}
	return names, nil
}

func emptyDay() map[string][]Slot {
	day := make(map[string][]Slot, 24)
	for h := 0; h < 24; h++ {
		day[hourLabel(h)] = []Slot{}
	}
	return day
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func hourLabel(h int) string {
	return fmt.Sprintf("%02d:00", h)
}
