package engine

import (
	"testing"
	"time"
)

// fixedClock is a Clock stub for deterministic pruner tests, the same role
// the teacher's ob.now func() time.Time field plays in its own tests.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestBook(t *testing.T) *OrderBook {
	t.Helper()
	ob := NewOrderBook(&fixedClock{now: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)})
	t.Cleanup(ob.Close)
	return ob
}

func mustEmpty(t *testing.T, trades Trades, what string) {
	t.Helper()
	if len(trades) != 0 {
		t.Fatalf("%s: expected no trades, got %+v", what, trades)
	}
}

// TestSimpleCross: S1 — a resting GTC buy partially crossed by an incoming
// GTC sell produces one trade and leaves the buy resting with a reduced
// remaining quantity.
func TestSimpleCross(t *testing.T) {
	ob := newTestBook(t)

	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "1", Buy, 100, 10)), "add buy")
	if got := ob.Size(); got != 1 {
		t.Fatalf("size after first add = %d, want 1", got)
	}

	trades := ob.AddOrder(NewOrder(GoodTillCancel, "2", Sell, 100, 7))
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d: %+v", len(trades), trades)
	}
	tr := trades[0]
	if tr.Bid.OrderID != "1" || tr.Bid.Quantity != 7 || tr.Bid.Price != 100 {
		t.Fatalf("unexpected bid leg: %+v", tr.Bid)
	}
	if tr.Ask.OrderID != "2" || tr.Ask.Quantity != 7 || tr.Ask.Price != 100 {
		t.Fatalf("unexpected ask leg: %+v", tr.Ask)
	}
	if got := ob.Size(); got != 1 {
		t.Fatalf("size after cross = %d, want 1 (order 1 partially filled)", got)
	}
}

// TestPriceTimePriorityOrdersTradeOldestFirst: S2 — among equal-priced
// bids, the earliest admitted trades first.
func TestPriceTimePriorityOrdersTradeOldestFirst(t *testing.T) {
	ob := newTestBook(t)

	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "1", Buy, 100, 5)), "add buy 1")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "2", Buy, 100, 5)), "add buy 2")

	trades := ob.AddOrder(NewOrder(GoodTillCancel, "3", Sell, 100, 5))
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Bid.OrderID != "1" {
		t.Fatalf("expected order 1 to trade first, traded %s", trades[0].Bid.OrderID)
	}

	bids, _ := ob.GetOrderInfos()
	if len(bids) != 1 || bids[0].Quantity != 5 {
		t.Fatalf("expected order 2 still resting with qty 5, got %+v", bids)
	}
	if ob.Size() != 1 {
		t.Fatalf("size = %d, want 1", ob.Size())
	}
}

// TestFillOrKillRejectsWhenBookCannotCoverSize: S3.
func TestFillOrKillRejectsWhenBookCannotCoverSize(t *testing.T) {
	ob := newTestBook(t)

	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "ask1", Sell, 101, 4)), "seed ask 101")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "ask2", Sell, 102, 3)), "seed ask 102")

	trades := ob.AddOrder(NewOrder(FillOrKill, "fok", Buy, 101, 5))
	mustEmpty(t, trades, "fill-or-kill rejection")

	if ob.Size() != 2 {
		t.Fatalf("size after rejected FOK = %d, want 2 (no mutation)", ob.Size())
	}
}

// TestFillAndKillPartialThenCancelled: S4.
func TestFillAndKillPartialThenCancelled(t *testing.T) {
	ob := newTestBook(t)

	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "ask1", Sell, 100, 3)), "seed ask")

	trades := ob.AddOrder(NewOrder(FillAndKill, "fak", Buy, 100, 10))
	if len(trades) != 1 || trades[0].Bid.Quantity != 3 {
		t.Fatalf("expected one trade of qty 3, got %+v", trades)
	}
	if ob.Size() != 0 {
		t.Fatalf("size after FAK residual cancel = %d, want 0", ob.Size())
	}
	_, asks := ob.GetOrderInfos()
	if len(asks) != 0 {
		t.Fatalf("expected asks empty, got %+v", asks)
	}
}

// TestMarketOrderRejectedWhenOppositeSideEmpty: S5.
func TestMarketOrderRejectedWhenOppositeSideEmpty(t *testing.T) {
	ob := newTestBook(t)

	trades := ob.AddOrder(NewMarketOrder("mkt", Buy, 5))
	mustEmpty(t, trades, "market order with no asks")
	if ob.Size() != 0 {
		t.Fatalf("size = %d, want 0", ob.Size())
	}
}

// TestMarketOrderRetagsToWorstOppositePrice walks two ask levels, as in
// the teacher's TestMarketOrderConsumesBest.
func TestMarketOrderRetagsToWorstOppositePrice(t *testing.T) {
	ob := newTestBook(t)

	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "ask1", Sell, 50, 2)), "seed ask1")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "ask2", Sell, 55, 5)), "seed ask2")

	trades := ob.AddOrder(NewMarketOrder("mkt", Buy, 4))
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades walking both levels, got %d: %+v", len(trades), trades)
	}
	if trades[0].Ask.Price != 50 || trades[0].Ask.Quantity != 2 {
		t.Fatalf("unexpected first trade: %+v", trades[0])
	}
	if trades[1].Ask.Price != 55 || trades[1].Ask.Quantity != 2 {
		t.Fatalf("unexpected second trade: %+v", trades[1])
	}
}

// TestModifyOrderLosesTimePriority: S6.
func TestModifyOrderLosesTimePriority(t *testing.T) {
	ob := newTestBook(t)

	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "1", Buy, 100, 5)), "add 1")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "2", Buy, 100, 5)), "add 2")

	modTrades := ob.ModifyOrder(NewOrderModify("1", Buy, 100, 5))
	mustEmpty(t, modTrades, "modify with unchanged price/qty")

	trades := ob.AddOrder(NewOrder(GoodTillCancel, "3", Sell, 100, 5))
	if len(trades) != 1 || trades[0].Bid.OrderID != "2" {
		t.Fatalf("expected order 2 (now older) to trade, got %+v", trades)
	}
}

func TestModifyUnknownIDIsNoOp(t *testing.T) {
	ob := newTestBook(t)
	trades := ob.ModifyOrder(NewOrderModify("ghost", Buy, 100, 1))
	mustEmpty(t, trades, "modify of unknown id")
	if ob.Size() != 0 {
		t.Fatalf("size = %d, want 0", ob.Size())
	}
}

func TestCancelRestoresSizeAndLevels(t *testing.T) {
	ob := newTestBook(t)

	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "1", Buy, 100, 10)), "add")
	ob.CancelOrder("1")

	if ob.Size() != 0 {
		t.Fatalf("size after cancel = %d, want 0", ob.Size())
	}
	bids, _ := ob.GetOrderInfos()
	if len(bids) != 0 {
		t.Fatalf("expected no bid levels after cancel, got %+v", bids)
	}
}

func TestCancelUnknownIDIsNoOp(t *testing.T) {
	ob := newTestBook(t)
	ob.CancelOrder("ghost")
	if ob.Size() != 0 {
		t.Fatalf("size = %d, want 0", ob.Size())
	}
}

func TestCancelOrdersBatchesUnderOneRequest(t *testing.T) {
	ob := newTestBook(t)

	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "1", Buy, 100, 1)), "add 1")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "2", Buy, 99, 1)), "add 2")

	ob.CancelOrders([]OrderID{"1", "2", "ghost"})
	if ob.Size() != 0 {
		t.Fatalf("size = %d, want 0", ob.Size())
	}
}

func TestDuplicateIDIsRejected(t *testing.T) {
	ob := newTestBook(t)

	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "1", Buy, 100, 1)), "add 1")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "1", Buy, 101, 1)), "duplicate add")

	bids, _ := ob.GetOrderInfos()
	if len(bids) != 1 || bids[0].Price != 100 {
		t.Fatalf("expected only the original order to rest, got %+v", bids)
	}
}

func TestGetOrderInfosIsPure(t *testing.T) {
	ob := newTestBook(t)
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "1", Buy, 100, 1)), "add")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "2", Sell, 101, 1)), "add")

	b1, a1 := ob.GetOrderInfos()
	b2, a2 := ob.GetOrderInfos()

	if len(b1) != len(b2) || len(a1) != len(a2) {
		t.Fatalf("consecutive snapshots disagree: %v/%v vs %v/%v", b1, a1, b2, a2)
	}
	for i := range b1 {
		if b1[i] != b2[i] {
			t.Fatalf("bid level %d differs: %+v vs %+v", i, b1[i], b2[i])
		}
	}
}

func TestGetOrderInfosOrdering(t *testing.T) {
	ob := newTestBook(t)
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "b1", Buy, 99, 1)), "add")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "b2", Buy, 100, 1)), "add")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "a1", Sell, 105, 1)), "add")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "a2", Sell, 104, 1)), "add")

	bids, asks := ob.GetOrderInfos()
	if len(bids) != 2 || bids[0].Price != 100 || bids[1].Price != 99 {
		t.Fatalf("bids not descending: %+v", bids)
	}
	if len(asks) != 2 || asks[0].Price != 104 || asks[1].Price != 105 {
		t.Fatalf("asks not ascending: %+v", asks)
	}
}

func TestCanMatchAndCanFullyFill(t *testing.T) {
	ob := newTestBook(t)
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "a1", Sell, 100, 3)), "seed")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "a2", Sell, 101, 4)), "seed")

	if !ob.CanMatch(Buy, 100) {
		t.Fatalf("expected CanMatch true at 100")
	}
	if ob.CanMatch(Buy, 99) {
		t.Fatalf("expected CanMatch false at 99")
	}
	if !ob.CanFullyFill(Buy, 101, 7) {
		t.Fatalf("expected full fill of 7 across both levels")
	}
	if ob.CanFullyFill(Buy, 101, 8) {
		t.Fatalf("expected insufficient supply for 8")
	}
	if ob.CanFullyFill(Buy, 100, 4) {
		t.Fatalf("expected 100 limit to only see the 100 level (qty 3)")
	}
}

// TestBidAskNeverCrossAfterAdd is invariant I4.
func TestBidAskNeverCrossAfterAdd(t *testing.T) {
	ob := newTestBook(t)
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "b1", Buy, 100, 20)), "add")
	ob.AddOrder(NewOrder(GoodTillCancel, "a1", Sell, 90, 5))

	bids, asks := ob.GetOrderInfos()
	if len(bids) > 0 && len(asks) > 0 && bids[0].Price >= asks[0].Price {
		t.Fatalf("book crossed: best bid %v >= best ask %v", bids[0].Price, asks[0].Price)
	}
}

func TestLevelQuantityMatchesRemainingSum(t *testing.T) {
	ob := newTestBook(t)
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "b1", Buy, 100, 4)), "add")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "b2", Buy, 100, 6)), "add")

	bids, _ := ob.GetOrderInfos()
	if len(bids) != 1 || bids[0].Quantity != 10 {
		t.Fatalf("expected aggregated qty 10 at 100, got %+v", bids)
	}
}

func TestRetagRejectsNonMarketOrder(t *testing.T) {
	o := NewOrder(GoodTillCancel, "1", Buy, 100, 1)
	err := o.Retag(101)
	if err == nil {
		t.Fatalf("expected error retagging a non-market order")
	}
	var logicErr *LogicError
	if !asLogicError(err, &logicErr) {
		t.Fatalf("expected *LogicError, got %T", err)
	}
	if logicErr.Message == "cannot be filled for more than its remaining quantity" {
		t.Fatalf("retag error message must not reuse the fill-overflow wording")
	}
}

func TestRetagRejectsNonFinitePrice(t *testing.T) {
	o := NewMarketOrder("1", Buy, 1)
	if err := o.Retag(InvalidPrice); err == nil {
		t.Fatalf("expected error retagging with a non-finite price")
	}
}

func TestFillRejectsOverfill(t *testing.T) {
	o := NewOrder(GoodTillCancel, "1", Buy, 100, 5)
	if err := o.Fill(6); err == nil {
		t.Fatalf("expected error filling beyond remaining quantity")
	}
	if o.RemainingQuantity() != 5 {
		t.Fatalf("remaining quantity mutated on rejected fill: %d", o.RemainingQuantity())
	}
}

func asLogicError(err error, target **LogicError) bool {
	le, ok := err.(*LogicError)
	if ok {
		*target = le
	}
	return ok
}

func TestNextCutoffAdvancesToTomorrowWhenPastCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)
	d := nextCutoff(now, sessionCloseHour)
	want := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC).Sub(now)
	if d != want {
		t.Fatalf("nextCutoff = %v, want %v", d, want)
	}
}

func TestNextCutoffSameDayWhenBeforeCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d := nextCutoff(now, sessionCloseHour)
	want := time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC).Sub(now)
	if d != want {
		t.Fatalf("nextCutoff = %v, want %v", d, want)
	}
}

func TestPrunerCancelsGoodForDayOrdersAtCutoff(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 3, 1, 15, 59, 58, 0, time.UTC)}
	ob := NewOrderBook(clock)
	defer ob.Close()

	mustEmpty(t, ob.AddOrder(NewOrder(GoodForDay, "gfd", Buy, 100, 1)), "add GFD")
	mustEmpty(t, ob.AddOrder(NewOrder(GoodTillCancel, "gtc", Buy, 99, 1)), "add GTC")

	// nextCutoff(15:59:58, 16) + pruneSlack = 2s + 100ms; give the pruner
	// comfortable headroom past that real-time wait before giving up.
	deadline := time.After(3 * time.Second)
	for {
		if ob.Size() == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pruner did not cancel the GoodForDay order in time, size=%d", ob.Size())
		case <-time.After(10 * time.Millisecond):
		}
	}

	bids, _ := ob.GetOrderInfos()
	if len(bids) != 1 || bids[0].Price != 99 {
		t.Fatalf("expected only the GTC order left resting, got %+v", bids)
	}
}
