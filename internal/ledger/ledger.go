// Package ledger accumulates practice time, session counts and the daily
// streak in the durable store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fakeyudi/respira/internal/clock"
	"github.com/fakeyudi/respira/internal/logging"
	"github.com/fakeyudi/respira/internal/phase"
	"github.com/fakeyudi/respira/internal/store"
)

// Store keys.
const (
	KeyTotalSeconds       = "stats.total_seconds"
	KeyBreathingSessions  = "stats.breathing_sessions"
	KeyMeditationSessions = "stats.meditation_sessions"
	KeySessionsCompleted  = "stats.sessions_completed"
	KeyLastDay            = "stats.last_day"
	KeyStreak             = "stats.streak"
)

// DayLayout formats the last-active-day marker.
const DayLayout = "2006-01-02"

// Stats is the ledger contents.
type Stats struct {
	TotalSeconds       int    `json:"total_seconds"`
	BreathingSessions  int    `json:"breathing_sessions"`
	MeditationSessions int    `json:"meditation_sessions"`
	SessionsCompleted  int    `json:"sessions_completed"`
	LastDay            string `json:"last_day,omitempty"`
	Streak             int    `json:"streak"`
}

// Ledger reads and commits Stats.
type Ledger struct {
	st    store.Store
	clock clock.Clock
	log   *log.Logger

	mu sync.Mutex
}

// New returns a Ledger over st. A nil clk uses the system clock.
func New(st store.Store, clk clock.Clock, logger *log.Logger) *Ledger {
	if clk == nil {
		clk = clock.System{}
	}
	return &Ledger{st: st, clock: clk, log: logging.OrDiscard(logger)}
}

// Load returns the current stats. Missing or unreadable fields read as zero.
func (l *Ledger) Load(ctx context.Context) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

func (l *Ledger) load(ctx context.Context) Stats {
	return Stats{
		TotalSeconds:       l.readInt(ctx, KeyTotalSeconds),
		BreathingSessions:  l.readInt(ctx, KeyBreathingSessions),
		MeditationSessions: l.readInt(ctx, KeyMeditationSessions),
		SessionsCompleted:  l.readInt(ctx, KeySessionsCompleted),
		LastDay:            l.readDay(ctx),
		Streak:             l.readInt(ctx, KeyStreak),
	}
}

func (l *Ledger) readInt(ctx context.Context, key string) int {
	raw, err := l.st.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.log.Warn("read stats", "key", key, "err", err)
		}
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		l.log.Warn("ignoring malformed stats value", "key", key, "value", raw)
		return 0
	}
	return n
}

func (l *Ledger) readDay(ctx context.Context) string {
	raw, err := l.st.Get(ctx, KeyLastDay)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.log.Warn("read stats", "key", KeyLastDay, "err", err)
		}
		return ""
	}
	if _, err := time.ParseInLocation(DayLayout, raw, time.Local); err != nil {
		l.log.Warn("ignoring malformed last day", "value", raw)
		return ""
	}
	return raw
}

// Commit records one finished session of elapsed seconds. It never rejects a
// commit; write failures are logged and returned so the caller may report
// them, but the returned Stats always reflect the attempted update.
func (l *Ledger) Commit(ctx context.Context, m phase.Modality, elapsed int) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Apply(l.load(ctx), m, elapsed, l.clock.Now())
	err := l.st.SetMany(ctx, map[string]string{
		KeyTotalSeconds:       strconv.Itoa(s.TotalSeconds),
		KeySessionsCompleted:  strconv.Itoa(s.SessionsCompleted),
		KeyBreathingSessions:  strconv.Itoa(s.BreathingSessions),
		KeyMeditationSessions: strconv.Itoa(s.MeditationSessions),
		KeyLastDay:            s.LastDay,
		KeyStreak:             strconv.Itoa(s.Streak),
	})
	if err != nil {
		err = fmt.Errorf("write stats: %w", err)
		l.log.Warn("stats not saved", "err", err)
		return s, err
	}
	l.log.Info("session recorded", "modality", m, "elapsed", elapsed, "streak", s.Streak, "total", s.TotalSeconds)
	return s, nil
}

// Apply returns prev updated with one session committed at now.
func Apply(prev Stats, m phase.Modality, elapsed int, now time.Time) Stats {
	s := prev
	s.TotalSeconds += max(elapsed, 0)
	s.SessionsCompleted++
	switch m {
	case phase.Breathing:
		s.BreathingSessions++
	case phase.Meditation:
		s.MeditationSessions++
	}
	s.Streak, s.LastDay = NextStreak(prev.Streak, prev.LastDay, now)
	return s
}

// NextStreak applies the streak rule for a completion at now: unchanged on
// the same calendar day, +1 when the last active day was yesterday, 1
// otherwise.
func NextStreak(streak int, lastDay string, now time.Time) (int, string) {
	today := now.Format(DayLayout)
	if lastDay == today {
		return streak, today
	}
	if lastDay == now.AddDate(0, 0, -1).Format(DayLayout) {
		return streak + 1, today
	}
	return 1, today
}
