package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pulsefeed/npcmind/internal/models"
)

// ErrInvalidConfiguration is returned for posting-time configurations that
// cannot produce a schedule
var ErrInvalidConfiguration = errors.New("invalid posting time configuration")

// CalculateMultiplePostTimes produces count future timestamps satisfying the
// posting-time configuration, sorted ascending and strictly increasing.
//
// In posts_per_day mode the active-hour window of each local day is
// partitioned into that day's batch size; rng jitters each slot within its
// own partition when randomize_minutes is set. When count exceeds
// posts_per_day the excess spills into subsequent days. Slots already in the
// past on the first day spill forward the same way.
//
// rng may be nil when randomize_minutes is false; a seeded rng makes the
// jittered schedule reproducible.
func CalculateMultiplePostTimes(cfg models.PostingTimes, count int, now time.Time, rng *rand.Rand) ([]time.Time, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: count must be non-negative, got %d", ErrInvalidConfiguration, count)
	}
	if count == 0 {
		return []time.Time{}, nil
	}

	loc, err := location(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case models.ModeCustomCron:
		return cronTimes(cfg, count, now.In(loc))
	case models.ModePostsPerDay, "":
		return partitionedTimes(cfg, count, now.In(loc), rng)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfiguration, cfg.Mode)
	}
}

// PostsPerCycle returns how many posts the configuration implies for one
// 24-hour cycle. The queue processor uses it to size the refill target.
func PostsPerCycle(cfg models.PostingTimes, now time.Time) (int, error) {
	switch cfg.Mode {
	case models.ModeCustomCron:
		schedule, err := cron.ParseStandard(cfg.CronExpression)
		if err != nil {
			return 0, fmt.Errorf("%w: bad cron expression %q: %v", ErrInvalidConfiguration, cfg.CronExpression, err)
		}
		loc, locErr := location(cfg.Timezone)
		if locErr != nil {
			return 0, locErr
		}
		t := now.In(loc)
		horizon := t.Add(24 * time.Hour)
		n := 0
		for {
			t = schedule.Next(t)
			if t.After(horizon) {
				return n, nil
			}
			n++
		}
	case models.ModePostsPerDay, "":
		if cfg.PostsPerDay < 0 {
			return 0, fmt.Errorf("%w: posts_per_day must be non-negative", ErrInvalidConfiguration)
		}
		return cfg.PostsPerDay, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfiguration, cfg.Mode)
	}
}

func partitionedTimes(cfg models.PostingTimes, count int, now time.Time, rng *rand.Rand) ([]time.Time, error) {
	start, end := cfg.ActiveHours.Start, cfg.ActiveHours.End
	if start < 0 || start >= 24 || end <= 0 || end > 24 {
		return nil, fmt.Errorf("%w: active hours out of range (%d-%d)", ErrInvalidConfiguration, start, end)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: active_hours.start (%d) must be before end (%d)", ErrInvalidConfiguration, start, end)
	}
	if cfg.PostsPerDay <= 0 {
		return nil, fmt.Errorf("%w: posts_per_day must be positive", ErrInvalidConfiguration)
	}
	if cfg.RandomizeMinutes && rng == nil {
		return nil, fmt.Errorf("%w: randomize_minutes requires a random source", ErrInvalidConfiguration)
	}

	windowMinutes := (end - start) * 60
	times := make([]time.Time, 0, count)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for len(times) < count {
		batch := count - len(times)
		if batch > cfg.PostsPerDay {
			batch = cfg.PostsPerDay
		}
		slotMinutes := float64(windowMinutes) / float64(batch)

		for i := 0; i < batch && len(times) < count; i++ {
			offset := float64(start*60) + slotMinutes*float64(i)
			if cfg.RandomizeMinutes {
				// Jitter stays inside the slot so neighbors cannot collide
				if maxJitter := int(slotMinutes) - 1; maxJitter > 0 {
					offset += float64(rng.Intn(maxJitter))
				}
			}
			t := day.Add(time.Duration(offset * float64(time.Minute)))
			if !t.After(now) {
				continue
			}
			times = append(times, t)
		}

		day = day.AddDate(0, 0, 1)
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times, nil
}

func cronTimes(cfg models.PostingTimes, count int, now time.Time) ([]time.Time, error) {
	schedule, err := cron.ParseStandard(cfg.CronExpression)
	if err != nil {
		return nil, fmt.Errorf("%w: bad cron expression %q: %v", ErrInvalidConfiguration, cfg.CronExpression, err)
	}

	times := make([]time.Time, 0, count)
	t := now
	for len(times) < count {
		t = schedule.Next(t)
		if t.IsZero() {
			return nil, fmt.Errorf("%w: cron expression %q never fires", ErrInvalidConfiguration, cfg.CronExpression)
		}
		times = append(times, t)
	}
	return times, nil
}

func location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidConfiguration, name)
	}
	return loc, nil
}
