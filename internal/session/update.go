package session

import "github.com/fakeyudi/respira/internal/phase"

// UpdateKind identifies an Update.
type UpdateKind int

const (
	UpdateStarted UpdateKind = iota
	UpdateTick
	UpdatePhase
	UpdateRetargeted
	UpdatePaused
	UpdateResumed
	UpdateAmbient
	UpdateCompleted
	UpdateStopped
)

func (k UpdateKind) String() string {
	return [...]string{"started", "tick", "phase", "retargeted", "paused", "resumed", "ambient", "completed", "stopped"}[k]
}

// Update is pushed to subscribers on every state change.
type Update struct {
	Kind   UpdateKind
	Run    phase.Snapshot
	Phase  string  // UpdatePhase only
	Result *Result // UpdateCompleted and UpdateStopped only
}

// Subscribe returns a channel of updates and a cancel func. Slow
// subscribers miss updates rather than stall the session.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Update, 32)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *Controller) emit(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u.Run.State == "" {
		u.Run = c.machine.Snapshot()
	}
	c.emitLocked(u)
}

func (c *Controller) emitLocked(u Update) {
	for _, ch := range c.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
