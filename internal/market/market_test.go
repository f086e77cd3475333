package market

import (
	"sync"
	"testing"

	"go.uber.org/zap"

	"quotedesk/internal/feed"
	"quotedesk/internal/symbols"
	"quotedesk/internal/view"
)

type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) Broadcast(v any) {
	r.mu.Lock()
	r.msgs = append(r.msgs, v)
	r.mu.Unlock()
}

func TestPipeline_MapsAndPublishes(t *testing.T) {
	rec := &recorder{}
	p := New(symbols.Default(), rec, zap.NewNop())

	if s := p.Snapshot(); !s.State.Table.Loading {
		t.Fatalf("expected loading before any data")
	}

	h := p.Handlers()
	h.OnData([]feed.Tick{{Symbol: "XUL10_BBJ", Last: 10}, {Symbol: "BTCUSD", Last: 1}})
	h.OnData([]feed.Tick{{Symbol: "XUL10_BBJ", Last: 12}})

	s := p.Snapshot()
	if len(s.Table) != 1 || s.Table[0].Direction != view.Up {
		t.Fatalf("unexpected table %+v", s.Table)
	}
	if len(s.Ticker) != 1 {
		t.Errorf("ticker should hold only the latest message, got %d", len(s.Ticker))
	}
	if s.State.Table.Loading || s.State.Cards.Reconnecting {
		t.Errorf("state should be clear after data: %+v", s.State)
	}
	if len(rec.msgs) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(rec.msgs))
	}
	if _, ok := rec.msgs[1].(Snapshot); !ok {
		t.Errorf("expected snapshot broadcast, got %T", rec.msgs[1])
	}
}

func TestPipeline_ErrorBeforeAndAfterData(t *testing.T) {
	rec := &recorder{}
	p := New(symbols.Default(), rec, nil)

	p.HandleError("")
	s := p.Snapshot()
	if !s.State.Ticker.Loading || !s.State.Ticker.Reconnecting {
		t.Errorf("expected loading and reconnecting, got %+v", s.State.Ticker)
	}

	p.HandleTicks([]feed.Tick{{Symbol: "HKK50_BBJ", Last: 17000}})
	p.HandleError("")
	s = p.Snapshot()
	if s.State.Cards.Loading || !s.State.Cards.Reconnecting {
		t.Errorf("expected reconnecting only, got %+v", s.State.Cards)
	}
	if len(s.Cards) != 1 {
		t.Errorf("cards should survive an error, got %d", len(s.Cards))
	}

	st, ok := rec.msgs[len(rec.msgs)-1].(StatusMsg)
	if !ok || st.Text != "Reconnecting" {
		t.Errorf("expected reconnecting status, got %+v", rec.msgs[len(rec.msgs)-1])
	}
}

func TestPipeline_SnapshotIsACopy(t *testing.T) {
	p := New(symbols.Default(), nil, nil)
	p.HandleTicks([]feed.Tick{{Symbol: "XUL10_BBJ", Last: 10}})
	s := p.Snapshot()
	s.Table[0].Last = 99
	if p.Snapshot().Table[0].Last != 10 {
		t.Error("snapshot shares backing array with the pipeline")
	}
}
