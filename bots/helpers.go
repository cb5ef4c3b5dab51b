package bots

import "limitless/engine"

func midPrice(view engine.BookView) engine.Price {
	var bid, ask engine.Price
	if view.BestBid != nil {
		bid = view.BestBid.Price
	}
	if view.BestAsk != nil {
		ask = view.BestAsk.Price
	}

	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	case ask > 0:
		return ask
	default:
		return 0
	}
}
