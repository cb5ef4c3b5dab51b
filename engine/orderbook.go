package engine

import "fmt"

type requestType int

const (
	requestAdd requestType = iota
	requestCancelMany
	requestModify
	requestSnapshot
	requestSize
	requestCanMatch
	requestCanFill
	requestGoodForDayIDs
	requestStop
)

type snapshotResult struct {
	bids LevelInfos
	asks LevelInfos
}

type bookRequest struct {
	typ      requestType
	order    *Order
	ids      []OrderID
	modify   OrderModify
	trades   chan Trades
	snapshot chan snapshotResult
	size     chan int
	idsResp  chan []OrderID
	done     chan struct{}

	querySide  Side
	queryPrice Price
	queryNeed  Quantity
	boolResp   chan bool
}

// orderEntry is what the id index stores for a live order: the order
// itself plus the price level its FIFO node currently lives in, giving
// O(1) removal without a second tree lookup.
type orderEntry struct {
	order *Order
	level *priceLevel
}

// BookView is the top-of-book snapshot broadcast on every book mutation,
// for front ends that only care about the best bid/ask rather than the
// full ladder GetOrderInfos returns.
type BookView struct {
	BestBid *LevelInfo
	BestAsk *LevelInfo
}

// OrderBook maintains bids and asks for a single instrument using
// price-time priority. All mutation is serialized through a single owning
// goroutine (run) that receives requests over reqCh — the idiomatic Go
// realization of the single exclusive mutex SPEC_FULL.md §5 describes; see
// DESIGN.md for why this shape is kept from the teacher.
type OrderBook struct {
	orders map[OrderID]*orderEntry
	bids   *priceLadder
	asks   *priceLadder
	levels *levelIndex

	reqCh chan bookRequest

	pruner *pruner

	tradeFeed chan Trades
	bookFeed  chan BookView
}

// NewOrderBook builds an order book and starts its owning goroutine and
// background pruner.
func NewOrderBook(clock Clock) *OrderBook {
	ob := &OrderBook{
		orders:    make(map[OrderID]*orderEntry),
		bids:      newPriceLadder(),
		asks:      newPriceLadder(),
		levels:    newLevelIndex(),
		reqCh:     make(chan bookRequest),
		tradeFeed: make(chan Trades, 256),
		bookFeed:  make(chan BookView, 256),
	}
	go ob.run()
	ob.pruner = newPruner(ob, clock)
	ob.pruner.start()
	return ob
}

// Trades returns a channel carrying the non-empty Trades produced by
// AddOrder/ModifyOrder, the way the teacher's OrderBook exposes a push feed
// for front ends instead of requiring them to poll. Sends never block: when
// the channel's 256-entry buffer is full, that batch is dropped from the
// feed. The channel is closed when the book is closed.
func (ob *OrderBook) Trades() <-chan Trades { return ob.tradeFeed }

// BookUpdates returns a channel carrying the top-of-book after each
// mutating request. Sends never block: when the channel's 256-entry buffer
// is full, that update is dropped. The channel is closed when the book is
// closed.
func (ob *OrderBook) BookUpdates() <-chan BookView { return ob.bookFeed }

func (ob *OrderBook) publish(trades Trades) {
	if len(trades) > 0 {
		select {
		case ob.tradeFeed <- trades:
		default:
		}
	}
	view := ob.topOfBookLocked()
	select {
	case ob.bookFeed <- view:
	default:
	}
}

func (ob *OrderBook) topOfBookLocked() BookView {
	var view BookView
	if best := ob.bids.Max(); best != nil {
		view.BestBid = &LevelInfo{Price: best.price, Quantity: ob.levels.quantityAt(Buy, best.price)}
	}
	if best := ob.asks.Min(); best != nil {
		view.BestAsk = &LevelInfo{Price: best.price, Quantity: ob.levels.quantityAt(Sell, best.price)}
	}
	return view
}

// Close stops the background pruner and the owning goroutine. It is safe
// to call at most once.
func (ob *OrderBook) Close() {
	ob.pruner.stop()
	done := make(chan struct{})
	ob.reqCh <- bookRequest{typ: requestStop, done: done}
	<-done
}

func (ob *OrderBook) run() {
	defer close(ob.tradeFeed)
	defer close(ob.bookFeed)

	for req := range ob.reqCh {
		switch req.typ {
		case requestAdd:
			trades := ob.addOrderLocked(req.order)
			req.trades <- trades
			ob.publish(trades)
		case requestCancelMany:
			ob.cancelOrdersLocked(req.ids)
			close(req.done)
			ob.publish(nil)
		case requestModify:
			trades := ob.modifyOrderLocked(req.modify)
			req.trades <- trades
			ob.publish(trades)
		case requestSnapshot:
			req.snapshot <- ob.snapshotLocked()
		case requestSize:
			req.size <- len(ob.orders)
		case requestCanMatch:
			req.boolResp <- ob.canMatchLocked(req.querySide, req.queryPrice)
		case requestCanFill:
			req.boolResp <- ob.canFullyFillLocked(req.querySide, req.queryPrice, req.queryNeed)
		case requestGoodForDayIDs:
			req.idsResp <- ob.goodForDayOrderIDsLocked()
		case requestStop:
			close(req.done)
			return
		}
	}
}

// AddOrder admits order to the book and returns any trades its admission
// produced. Duplicate ids, Market orders with no opposite liquidity,
// FillAndKill orders that cannot cross at all, and FillOrKill orders that
// cannot be fully filled are all admission rejections: empty Trades, no
// mutation, no error.
func (ob *OrderBook) AddOrder(order *Order) Trades {
	resp := make(chan Trades, 1)
	ob.reqCh <- bookRequest{typ: requestAdd, order: order, trades: resp}
	return <-resp
}

// CancelOrder removes order id from the book if it is currently resting.
// Unknown ids are a silent no-op.
func (ob *OrderBook) CancelOrder(id OrderID) {
	ob.CancelOrders([]OrderID{id})
}

// CancelOrders cancels every id in ids under a single acquisition of the
// owning goroutine, equivalent to calling CancelOrder for each id.
func (ob *OrderBook) CancelOrders(ids []OrderID) {
	done := make(chan struct{})
	ob.reqCh <- bookRequest{typ: requestCancelMany, ids: ids, done: done}
	<-done
}

// ModifyOrder replaces an existing order's price/quantity, preserving its
// discipline, and returns any trades the replacement produced. The
// replacement is a Cancel followed by an Add, so it loses time priority.
// Both steps run inside one request on the owning goroutine, with no other
// request between them: a concurrent caller never sees the order absent.
// An unknown id is a no-op returning empty Trades.
func (ob *OrderBook) ModifyOrder(modify OrderModify) Trades {
	resp := make(chan Trades, 1)
	ob.reqCh <- bookRequest{typ: requestModify, modify: modify, trades: resp}
	return <-resp
}

// Size returns the number of currently live (resting) orders.
func (ob *OrderBook) Size() int {
	resp := make(chan int, 1)
	ob.reqCh <- bookRequest{typ: requestSize, size: resp}
	return <-resp
}

// GetOrderInfos returns a snapshot of aggregated resting quantity per
// price, bids descending and asks ascending.
func (ob *OrderBook) GetOrderInfos() (bids, asks LevelInfos) {
	resp := make(chan snapshotResult, 1)
	ob.reqCh <- bookRequest{typ: requestSnapshot, snapshot: resp}
	res := <-resp
	return res.bids, res.asks
}

func (ob *OrderBook) snapshotLocked() snapshotResult {
	var res snapshotResult
	ob.bids.ForEachDescending(func(level *priceLevel) bool {
		res.bids = append(res.bids, LevelInfo{Price: level.price, Quantity: ob.levels.quantityAt(Buy, level.price)})
		return true
	})
	ob.asks.ForEachAscending(func(level *priceLevel) bool {
		res.asks = append(res.asks, LevelInfo{Price: level.price, Quantity: ob.levels.quantityAt(Sell, level.price)})
		return true
	})
	return res
}

func (ob *OrderBook) ladderFor(side Side) *priceLadder {
	if side == Buy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) addOrderLocked(order *Order) Trades {
	if _, exists := ob.orders[order.id]; exists {
		return nil
	}

	if order.orderType == Market {
		if order.side == Buy {
			worstAsk := ob.asks.Max()
			if worstAsk == nil {
				return nil
			}
			if err := order.Retag(worstAsk.price); err != nil {
				panic(err)
			}
		} else {
			worstBid := ob.bids.Min()
			if worstBid == nil {
				return nil
			}
			if err := order.Retag(worstBid.price); err != nil {
				panic(err)
			}
		}
	}

	if order.orderType == FillAndKill && !ob.canMatchLocked(order.side, order.price) {
		return nil
	}
	if order.orderType == FillOrKill && !ob.canFullyFillLocked(order.side, order.price, order.initialQuantity) {
		return nil
	}

	level := ob.ladderFor(order.side).upsert(order.price)
	level.pushBack(order)
	ob.orders[order.id] = &orderEntry{order: order, level: level}
	ob.levels.update(order.side, order.price, order.initialQuantity, levelAdd)

	return ob.matchOrders()
}

func (ob *OrderBook) cancelOrdersLocked(ids []OrderID) {
	for _, id := range ids {
		ob.cancelOrderLocked(id)
	}
}

func (ob *OrderBook) cancelOrderLocked(id OrderID) {
	entry, ok := ob.orders[id]
	if !ok {
		return
	}
	delete(ob.orders, id)

	order := entry.order
	entry.level.unlink(order)
	if entry.level.empty() {
		ob.ladderFor(order.side).removeIfEmpty(order.price)
	}
	ob.levels.update(order.side, order.price, order.remainingQuantity, levelRemove)
}

func (ob *OrderBook) modifyOrderLocked(modify OrderModify) Trades {
	entry, ok := ob.orders[modify.id]
	if !ok {
		return nil
	}
	orderType := entry.order.orderType

	ob.cancelOrderLocked(modify.id)
	return ob.addOrderLocked(modify.ToOrder(orderType))
}

// matchOrders runs the cross-and-fill loop until the book is no longer
// crossed, then enforces the FillAndKill/FillOrKill residual-cancellation
// rule on whichever order is left resting at the head of either side.
func (ob *OrderBook) matchOrders() Trades {
	var trades Trades

	for {
		bidLevel := ob.bids.Max()
		askLevel := ob.asks.Min()
		if bidLevel == nil || askLevel == nil {
			break
		}
		if bidLevel.price < askLevel.price {
			break
		}

		for bidLevel.count > 0 && askLevel.count > 0 {
			bid := bidLevel.head
			ask := askLevel.head

			quantity := minQuantity(bid.remainingQuantity, ask.remainingQuantity)
			if err := bid.Fill(quantity); err != nil {
				panic(err)
			}
			if err := ask.Fill(quantity); err != nil {
				panic(err)
			}

			bidFilled := bid.IsFilled()
			askFilled := ask.IsFilled()

			if bidFilled {
				bidLevel.unlink(bid)
				delete(ob.orders, bid.id)
			}
			if askFilled {
				askLevel.unlink(ask)
				delete(ob.orders, ask.id)
			}

			trades = append(trades, Trade{
				Bid: TradeInfo{OrderID: bid.id, Price: bid.price, Quantity: quantity},
				Ask: TradeInfo{OrderID: ask.id, Price: ask.price, Quantity: quantity},
			})

			ob.levels.update(Buy, bid.price, quantity, levelActionFor(bidFilled))
			ob.levels.update(Sell, ask.price, quantity, levelActionFor(askFilled))
		}

		if bidLevel.empty() {
			ob.bids.removeIfEmpty(bidLevel.price)
		}
		if askLevel.empty() {
			ob.asks.removeIfEmpty(askLevel.price)
		}
	}

	ob.cancelDisallowedResidual(ob.bids.Max(), Buy)
	ob.cancelDisallowedResidual(ob.asks.Min(), Sell)

	return trades
}

// cancelDisallowedResidual clears a FillAndKill or FillOrKill order still
// resting at the head of level after matching. Both disciplines are
// checked on both sides (spec.md Open Question 2's symmetric resolution —
// see SPEC_FULL.md §6).
func (ob *OrderBook) cancelDisallowedResidual(level *priceLevel, side Side) {
	if level == nil || level.count == 0 {
		return
	}
	head := level.head
	if head.orderType == FillAndKill || head.orderType == FillOrKill {
		ob.cancelOrderLocked(head.id)
	}
}

func levelActionFor(filled bool) levelAction {
	if filled {
		return levelRemove
	}
	return levelMatch
}

func minQuantity(a, b Quantity) Quantity {
	if a < b {
		return a
	}
	return b
}

// CanMatch reports whether an order on side at price could cross at least
// one unit against the opposite side's best level. Like Size and
// GetOrderInfos, the query is answered by the owning goroutine rather than
// racing the indices from the caller.
func (ob *OrderBook) CanMatch(side Side, price Price) bool {
	resp := make(chan bool, 1)
	ob.reqCh <- bookRequest{typ: requestCanMatch, querySide: side, queryPrice: price, boolResp: resp}
	return <-resp
}

// CanFullyFill reports whether an order on side at price for quantity need
// could be matched in full against current resting liquidity.
func (ob *OrderBook) CanFullyFill(side Side, price Price, need Quantity) bool {
	resp := make(chan bool, 1)
	req := bookRequest{typ: requestCanFill, querySide: side, queryPrice: price, queryNeed: need, boolResp: resp}
	ob.reqCh <- req
	return <-resp
}

func (ob *OrderBook) canMatchLocked(side Side, price Price) bool {
	if side == Buy {
		best := ob.asks.Min()
		if best == nil {
			return false
		}
		return price >= best.price
	}
	best := ob.bids.Max()
	if best == nil {
		return false
	}
	return price <= best.price
}

// canFullyFillLocked walks the opposite side's levels, from its best price
// up to (inclusive of) the limit, summing aggregated quantity until need is
// covered. O(levels), not O(orders) — the reason levelIndex exists at all.
func (ob *OrderBook) canFullyFillLocked(side Side, price Price, need Quantity) bool {
	if !ob.canMatchLocked(side, price) {
		return false
	}

	opposite := side.Opposite()
	remaining := need

	visit := func(level *priceLevel) bool {
		if side == Buy && level.price > price {
			return false
		}
		if side == Sell && level.price < price {
			return false
		}
		qty := ob.levels.quantityAt(opposite, level.price)
		if remaining <= qty {
			remaining = 0
			return false
		}
		remaining -= qty
		return true
	}

	if side == Buy {
		ob.asks.ForEachAscending(visit)
	} else {
		ob.bids.ForEachDescending(visit)
	}

	return remaining == 0
}

func (ob *OrderBook) String() string {
	return fmt.Sprintf("OrderBook{orders=%d}", len(ob.orders))
}

// goodForDayOrderIDs returns the ids of all currently resting GoodForDay
// orders, consumed by the pruner (engine/pruner.go).
func (ob *OrderBook) goodForDayOrderIDs() []OrderID {
	resp := make(chan []OrderID, 1)
	ob.reqCh <- bookRequest{typ: requestGoodForDayIDs, idsResp: resp}
	return <-resp
}

func (ob *OrderBook) goodForDayOrderIDsLocked() []OrderID {
	var ids []OrderID
	for id, entry := range ob.orders {
		if entry.order.orderType == GoodForDay {
			ids = append(ids, id)
		}
	}
	return ids
}
