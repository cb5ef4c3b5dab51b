package bots

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"limitless/engine"
)

// Supervisor orchestrates multiple bots with a shared client and PnL tracking.
type Supervisor struct {
	bots     []Bot
	client   *ThrottledClient
	pnl      *pnlTracker
	throttle *time.Ticker
}

// NewSupervisor builds a default swarm of bots and a throttled client.
func NewSupervisor(book *engine.OrderBook, tickSize engine.Price, orderInterval time.Duration) *Supervisor {
	throttle := time.NewTicker(orderInterval)
	client := NewThrottledClient(book, tickSize, throttle.C)
	bots := []Bot{
		NewRandomBidBot(),
		NewRandomAskBot(),
		NewRandomBidBot(),
		NewRandomAskBot(),
		NewSpreadCaptureBot(),
	}
	return &Supervisor{
		bots:     bots,
		client:   client,
		pnl:      &pnlTracker{},
		throttle: throttle,
	}
}

// Start launches all bots and PnL monitoring until the context is canceled.
func (s *Supervisor) Start(ctx context.Context) {
	logTicker := time.NewTicker(2 * time.Second)
	defer logTicker.Stop()
	defer s.throttle.Stop()

	for _, bot := range s.bots {
		b := bot
		go b.Start(ctx, s.client)
	}

	go s.consumeTrades(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-logTicker.C:
			pos, cash := s.pnl.Snapshot()
			log.Printf("PNL position=%d cash=%.2f", pos, cash)
		}
	}
}

func (s *Supervisor) consumeTrades(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trades, ok := <-s.client.Trades():
			if !ok {
				return
			}
			for _, trade := range trades {
				s.pnl.Record(trade, s.client)
			}
		}
	}
}

type pnlTracker struct {
	mu       sync.Mutex
	position engine.Quantity
	cash     float64
}

func (p *pnlTracker) Record(trade engine.Trade, client EngineClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client.OwnsOrder(trade.Bid.OrderID) {
		p.position += trade.Bid.Quantity
		p.cash -= float64(trade.Bid.Price) * float64(trade.Bid.Quantity)
	}
	if client.OwnsOrder(trade.Ask.OrderID) {
		p.position -= trade.Ask.Quantity
		p.cash += float64(trade.Ask.Price) * float64(trade.Ask.Quantity)
	}
}

func (p *pnlTracker) Snapshot() (engine.Quantity, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.cash
}

// RunExampleSupervisor demonstrates spinning up the supervisor with a fresh book.
func RunExampleSupervisor() {
	book := engine.NewOrderBook(engine.SystemClock())
	sup := NewSupervisor(book, 1, 50*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sup.Start(ctx)
	book.Close()
	pos, cash := sup.pnl.Snapshot()
	fmt.Printf("final PNL position=%d cash=%.2f\n", pos, cash)
}
