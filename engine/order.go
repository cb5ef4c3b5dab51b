package engine

// Order is the mutable state of a single resting or in-flight order. An
// Order's lifetime equals its presence in the OrderBook's id index; it is
// mutated only by the engine under the owning goroutine (see orderbook.go).
//
// prev/next form the intrusive doubly-linked FIFO the order occupies inside
// its current price level once it rests in a ladder; they are nil while the
// order is not resting anywhere (in flight, or already departed).
type Order struct {
	orderType         OrderType
	id                OrderID
	side              Side
	price             Price
	initialQuantity   Quantity
	remainingQuantity Quantity

	prev, next *Order
}

// NewOrder constructs a priced order (GoodTillCancel, GoodForDay,
// FillAndKill, FillOrKill).
func NewOrder(orderType OrderType, id OrderID, side Side, price Price, quantity Quantity) *Order {
	return &Order{
		orderType:         orderType,
		id:                id,
		side:              side,
		price:             price,
		initialQuantity:   quantity,
		remainingQuantity: quantity,
	}
}

// NewMarketOrder constructs an unpriced Market order; its price is set by
// the engine's retag step during admission (see OrderBook.AddOrder).
func NewMarketOrder(id OrderID, side Side, quantity Quantity) *Order {
	return NewOrder(Market, id, side, InvalidPrice, quantity)
}

func (o *Order) OrderType() OrderType         { return o.orderType }
func (o *Order) ID() OrderID                  { return o.id }
func (o *Order) Side() Side                   { return o.side }
func (o *Order) Price() Price                 { return o.price }
func (o *Order) InitialQuantity() Quantity    { return o.initialQuantity }
func (o *Order) RemainingQuantity() Quantity  { return o.remainingQuantity }
func (o *Order) FilledQuantity() Quantity     { return o.initialQuantity - o.remainingQuantity }
func (o *Order) IsFilled() bool               { return o.remainingQuantity == 0 }

// Fill reduces the order's remaining quantity. It is a LogicError to fill
// for more than the order currently has remaining.
func (o *Order) Fill(quantity Quantity) error {
	if quantity > o.remainingQuantity {
		return newLogicError(o.id, "cannot be filled for more than its remaining quantity")
	}
	o.remainingQuantity -= quantity
	return nil
}

// Retag converts a Market order into a GoodTillCancel order resting at a
// concrete price, as part of admission. It is a LogicError to retag an
// order that is not currently Market, or to retag with a non-finite price.
func (o *Order) Retag(price Price) error {
	if o.orderType != Market {
		return newLogicError(o.id, "is not a market order")
	}
	if !price.IsValid() {
		return newLogicError(o.id, "must be retagged with a tradeable price")
	}
	o.price = price
	o.orderType = GoodTillCancel
	return nil
}

// OrderModify is a request to replace an existing order's price and/or
// quantity while preserving its discipline. It carries no OrderType — the
// engine looks up and reuses the existing order's type.
type OrderModify struct {
	id       OrderID
	side     Side
	price    Price
	quantity Quantity
}

// NewOrderModify builds a replace request for an existing order.
func NewOrderModify(id OrderID, side Side, price Price, quantity Quantity) OrderModify {
	return OrderModify{id: id, side: side, price: price, quantity: quantity}
}

func (m OrderModify) ID() OrderID { return m.id }

// ToOrder produces a fresh Order preserving the modify request's id, side,
// price and quantity, under the supplied (carried-over) order type.
func (m OrderModify) ToOrder(orderType OrderType) *Order {
	return NewOrder(orderType, m.id, m.side, m.price, m.quantity)
}
