package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/pkg/protocol"
	"go.uber.org/zap"
)

// Publisher derives the online set from registry heartbeats and pushes only
// the joined/left delta to connected clients, bounding notification volume
// under churn. Recomputation runs on every registry change and on a periodic
// tick that catches heartbeats going stale without a registry event.
type Publisher struct {
	reg    *registry.Registry
	window time.Duration
	tick   time.Duration

	mu     sync.Mutex
	online map[string]struct{}
}

func NewPublisher(reg *registry.Registry, window, tick time.Duration) *Publisher {
	p := &Publisher{
		reg:    reg,
		window: window,
		tick:   tick,
		online: make(map[string]struct{}),
	}
	reg.OnChange(p.Recompute)
	return p
}

// Run drives periodic recomputation until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	t := time.NewTicker(p.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Recompute()
		}
	}
}

// Online returns the current online set, sorted for determinism.
func (p *Publisher) Online() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Recompute rebuilds the online set against the staleness window and, when
// it changed, broadcasts the delta to every online session.
func (p *Publisher) Recompute() {
	fresh := p.reg.ActiveIdentities(p.window)
	next := make(map[string]struct{}, len(fresh))
	for _, id := range fresh {
		next[id] = struct{}{}
	}

	p.mu.Lock()
	var joined, left []string
	for id := range next {
		if _, ok := p.online[id]; !ok {
			joined = append(joined, id)
		}
	}
	for id := range p.online {
		if _, ok := next[id]; !ok {
			left = append(left, id)
		}
	}
	p.online = next
	p.mu.Unlock()

	if len(joined) == 0 && len(left) == 0 {
		return
	}
	sort.Strings(joined)
	sort.Strings(left)
	obslog.L().Debug("presence_diff", zap.Strings("joined", joined), zap.Strings("left", left))

	env := protocol.NewEvent(protocol.VerbPresenceDiff, protocol.PresenceDiff{Joined: joined, Left: left})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for id := range next {
		if sess, ok := p.reg.Lookup(id); ok {
			_ = sess.Send(ctx, env)
		}
	}
}
