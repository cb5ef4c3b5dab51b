package bots

import (
	"context"

	"limitless/engine"
)

// Bot represents a trading agent that can be run under a supervisor.
type Bot interface {
	Start(ctx context.Context, client EngineClient)
}

// EngineClient abstracts the minimal surface bots need from the matching engine.
type EngineClient interface {
	SubmitOrder(ctx context.Context, order *engine.Order) (engine.Trades, error)
	CancelOrder(ctx context.Context, orderID engine.OrderID) error
	Snapshot(ctx context.Context) (engine.BookView, error)
	Trades() <-chan engine.Trades
	TickSize() engine.Price
	NextID(prefix string) engine.OrderID
	OwnsOrder(id engine.OrderID) bool
}
