package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"limitless/engine"
)

func main() {
	totalOrders := flag.Int("orders", 500000, "number of orders to submit")
	priceLevels := flag.Int64("price-levels", 200, "unique price levels around the mid")
	tick := flag.Int64("tick", 1, "tick size for limit prices")
	basePrice := flag.Int64("base-price", 10000, "mid price used for randomization")
	cancelEvery := flag.Int("cancel-every", 0, "cancel a random previously submitted order every N submissions")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for deterministic random streams")
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write heap profile to file")
	marketRatio := flag.Int("market-ratio", 5, "1 in N orders will be market instead of limit")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	book := engine.NewOrderBook(engine.SystemClock())

	var matches int64
	done := make(chan struct{})
	go func() {
		for trades := range book.Trades() {
			atomic.AddInt64(&matches, int64(len(trades)))
		}
		close(done)
	}()

	ids := make([]engine.OrderID, 0, *totalOrders)

	start := time.Now()
	for i := 0; i < *totalOrders; i++ {
		order := nextRandomOrder(rng, *basePrice, *priceLevels, *tick, *marketRatio)
		ids = append(ids, order.ID())
		book.AddOrder(order)

		if *cancelEvery > 0 && i > 0 && i%*cancelEvery == 0 {
			target := rng.Intn(i)
			book.CancelOrder(ids[target])
		}
	}
	elapsed := time.Since(start)

	book.Close()
	<-done

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err == nil {
			defer f.Close()
			_ = pprof.WriteHeapProfile(f)
		}
	}

	ordersPerSec := float64(*totalOrders) / elapsed.Seconds()
	tradesPerSec := float64(matches) / elapsed.Seconds()

	fmt.Printf("submitted %d orders in %s (%.0f orders/s)\n", *totalOrders, elapsed.Truncate(time.Millisecond), ordersPerSec)
	fmt.Printf("matched %d trades (%.0f trades/s)\n", matches, tradesPerSec)
	fmt.Printf("config: tick=%d market-ratio=1/%d\n", *tick, *marketRatio)
}

func nextRandomOrder(rng *rand.Rand, mid, width, tick int64, marketRatio int) *engine.Order {
	side := engine.Side(rng.Intn(2))
	id := engine.OrderID(uuid.NewString())

	if marketRatio > 0 && rng.Intn(marketRatio) == 0 {
		qty := engine.Quantity(rng.Int63n(5) + 1)
		return engine.NewMarketOrder(id, side, qty)
	}

	var priceTicks int64
	if side == engine.Buy {
		priceTicks = mid + rng.Int63n(width)*tick
	} else {
		offset := rng.Int63n(width) * tick
		if mid > offset {
			priceTicks = mid - offset
		} else {
			priceTicks = tick
		}
	}

	qty := engine.Quantity(rng.Int63n(5) + 1)
	return engine.NewOrder(engine.GoodTillCancel, id, side, engine.Price(priceTicks), qty)
}
