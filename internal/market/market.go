// Package market runs every feed snapshot through the widget mappers and
// publishes the result.
package market

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"quotedesk/internal/feed"
	"quotedesk/internal/symbols"
	"quotedesk/internal/view"
)

// Publisher fans a message out to connected browsers.
type Publisher interface {
	Broadcast(v any)
}

// States carries the banner state of each widget.
type States struct {
	Table  view.WidgetState `json:"table"`
	Cards  view.WidgetState `json:"cards"`
	Ticker view.WidgetState `json:"ticker"`
}

// Snapshot is the last mapped view of every widget.
type Snapshot struct {
	Type      string            `json:"type"`
	Table     []view.Row        `json:"table"`
	Cards     []view.Card       `json:"cards"`
	Ticker    []view.TickerItem `json:"ticker"`
	State     States            `json:"state"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type StatusMsg struct {
	Type  string `json:"type"`
	Level string `json:"level"`
	Text  string `json:"text"`
	State States `json:"state"`
}

func (s Snapshot) MessageType() string  { return s.Type }
func (m StatusMsg) MessageType() string { return m.Type }

// Pipeline is safe for concurrent use; mapper state is guarded by mu.
type Pipeline struct {
	pub Publisher
	log *zap.Logger
	now func() time.Time

	mu     sync.Mutex
	table  *view.TableMapper
	cards  *view.CardMapper
	ticker *view.TickerMapper
	snap   Snapshot
}

func New(tbl *symbols.Table, pub Publisher, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		pub:    pub,
		log:    log,
		now:    time.Now,
		table:  view.NewTableMapper(tbl),
		cards:  view.NewCardMapper(tbl),
		ticker: view.NewTickerMapper(tbl),
		snap: Snapshot{
			Type: "quotes",
			State: States{
				Table:  view.NewWidgetState(),
				Cards:  view.NewWidgetState(),
				Ticker: view.NewWidgetState(),
			},
		},
	}
}

// Handlers wires the pipeline to a feed client.
func (p *Pipeline) Handlers() feed.Handlers {
	return feed.Handlers{
		OnData:  p.HandleTicks,
		OnError: p.HandleError,
		OnOpen:  p.HandleOpen,
	}
}

func (p *Pipeline) HandleTicks(ticks []feed.Tick) {
	p.mu.Lock()
	p.snap.Table = p.table.Map(ticks)
	p.snap.Cards = p.cards.Map(ticks)
	p.snap.Ticker = p.ticker.Map(ticks)
	p.snap.State.Table.OnData()
	p.snap.State.Cards.OnData()
	p.snap.State.Ticker.OnData()
	p.snap.UpdatedAt = p.now()
	out := p.copyLocked()
	p.mu.Unlock()

	p.log.Debug("ticks mapped",
		zap.Int("ticks", len(ticks)),
		zap.Int("rows", len(out.Table)),
		zap.Int("cards", len(out.Cards)))
	if p.pub != nil {
		p.pub.Broadcast(out)
	}
}

func (p *Pipeline) HandleError(msg string) {
	p.mu.Lock()
	p.snap.State.Table.OnError()
	p.snap.State.Cards.OnError()
	p.snap.State.Ticker.OnError()
	st := p.snap.State
	p.mu.Unlock()

	p.log.Warn("feed error, waiting for reconnect", zap.String("message", msg))
	if p.pub != nil {
		p.pub.Broadcast(StatusMsg{Type: "status", Level: "warning", Text: "Reconnecting", State: st})
	}
}

func (p *Pipeline) HandleOpen() {
	p.log.Info("feed open")
	if p.pub != nil {
		p.mu.Lock()
		st := p.snap.State
		p.mu.Unlock()
		p.pub.Broadcast(StatusMsg{Type: "status", Level: "info", Text: "Connected", State: st})
	}
}

// Snapshot returns a copy safe to hand to another goroutine.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLocked()
}

func (p *Pipeline) copyLocked() Snapshot {
	s := p.snap
	s.Table = append([]view.Row(nil), p.snap.Table...)
	s.Cards = append([]view.Card(nil), p.snap.Cards...)
	s.Ticker = append([]view.TickerItem(nil), p.snap.Ticker...)
	return s
}
