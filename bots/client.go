package bots

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"limitless/engine"
)

// ThrottledClient wraps an OrderBook with rate limiting and per-bot order
// ownership bookkeeping, the same role the teacher's ThrottledClient plays
// around its own OrderBook.
type ThrottledClient struct {
	book     *engine.OrderBook
	tickSize engine.Price
	throttle <-chan time.Time
	trades   <-chan engine.Trades

	mu    sync.Mutex
	owned map[engine.OrderID]struct{}
}

// NewThrottledClient wraps an order book with basic rate limiting and bookkeeping.
func NewThrottledClient(book *engine.OrderBook, tickSize engine.Price, throttle <-chan time.Time) *ThrottledClient {
	return &ThrottledClient{
		book:     book,
		tickSize: tickSize,
		throttle: throttle,
		trades:   book.Trades(),
		owned:    make(map[engine.OrderID]struct{}),
	}
}

func (c *ThrottledClient) waitThrottle(ctx context.Context) error {
	if c.throttle == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.throttle:
		return nil
	}
}

func (c *ThrottledClient) SubmitOrder(ctx context.Context, order *engine.Order) (engine.Trades, error) {
	if err := c.waitThrottle(ctx); err != nil {
		return nil, err
	}
	trades := c.book.AddOrder(order)

	c.mu.Lock()
	c.owned[order.ID()] = struct{}{}
	c.mu.Unlock()
	return trades, nil
}

func (c *ThrottledClient) CancelOrder(ctx context.Context, orderID engine.OrderID) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.book.CancelOrder(orderID)
	return nil
}

func (c *ThrottledClient) Snapshot(ctx context.Context) (engine.BookView, error) {
	type result struct {
		view engine.BookView
	}
	done := make(chan result, 1)
	go func() {
		bids, asks := c.book.GetOrderInfos()
		var view engine.BookView
		if len(bids) > 0 {
			view.BestBid = &bids[0]
		}
		if len(asks) > 0 {
			view.BestAsk = &asks[0]
		}
		done <- result{view: view}
	}()

	select {
	case <-ctx.Done():
		return engine.BookView{}, ctx.Err()
	case res := <-done:
		return res.view, nil
	}
}

func (c *ThrottledClient) Trades() <-chan engine.Trades {
	return c.trades
}

func (c *ThrottledClient) TickSize() engine.Price {
	return c.tickSize
}

// NextID mints a fresh id scoped by prefix. Generation uses uuid rather
// than a sequence counter so concurrently running bots never collide
// without sharing a lock.
func (c *ThrottledClient) NextID(prefix string) engine.OrderID {
	return engine.OrderID(prefix + "-" + uuid.NewString())
}

func (c *ThrottledClient) OwnsOrder(id engine.OrderID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.owned[id]
	return ok
}
