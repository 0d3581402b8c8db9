package bot

import (
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"
)

// albumCollector debounces media group parts. Telegram delivers an album as
// separate messages sharing an AlbumID with no end marker, so each new part
// pushes the flush deadline back by the collection delay.
type albumCollector struct {
	mu     sync.Mutex
	delay  time.Duration
	flush  func(msgs []*tele.Message)
	groups map[string]*albumGroup
}

type albumGroup struct {
	msgs  []*tele.Message
	timer *time.Timer
}

func newAlbumCollector(delay time.Duration, flush func(msgs []*tele.Message)) *albumCollector {
	return &albumCollector{
		delay:  delay,
		flush:  flush,
		groups: make(map[string]*albumGroup),
	}
}

func (a *albumCollector) add(id string, m *tele.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.groups[id]
	if !ok {
		g = &albumGroup{}
		a.groups[id] = g
	}
	g.msgs = append(g.msgs, m)

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(a.delay, func() { a.fire(id) })
}

// fire hands the group to the flush callback exactly once: the group is
// removed from the map under the lock, so a stale timer finds nothing.
func (a *albumCollector) fire(id string) {
	a.mu.Lock()
	g, ok := a.groups[id]
	if ok {
		delete(a.groups, id)
	}
	a.mu.Unlock()

	if !ok || len(g.msgs) == 0 {
		return
	}
	a.flush(g.msgs)
}
