package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spf13/viper"

	"limitless/engine"
)

type server struct {
	book       *engine.OrderBook
	tradeHub   *hub[engine.Trades]
	bookHub    *hub[engine.BookView]
	upgrader   websocket.Upgrader
	authToken  string
	corsOrigin string
}

type orderRequest struct {
	ID       string  `json:"id"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

type orderResponse struct {
	Status string        `json:"status"`
	Trades []publicTrade `json:"trades"`
}

type snapshotResponse struct {
	BestBid *publicLevel `json:"bestBid,omitempty"`
	BestAsk *publicLevel `json:"bestAsk,omitempty"`
}

type publicLevel struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

type publicTrade struct {
	BuyOrderID  string  `json:"buyOrderId"`
	SellOrderID string  `json:"sellOrderId"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
}

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func main() {
	cfg := loadConfig()

	book := engine.NewOrderBook(engine.SystemClock())
	defer book.Close()

	srv := newServer(book, cfg.authToken, cfg.corsOrigin)

	log.Printf("listening on %s", cfg.listenAddr)
	if err := http.ListenAndServe(cfg.listenAddr, srv.routes()); err != nil {
		log.Fatal(err)
	}
}

type config struct {
	listenAddr string
	authToken  string
	corsOrigin string
}

// loadConfig reads server configuration from LIMITLESS_* environment
// variables and an optional limitless.yaml in the working directory, with
// defaults for anything unset, replacing the
// teacher's hand-rolled getEnv/parseIntEnv helpers.
func loadConfig() config {
	v := viper.New()
	v.SetEnvPrefix("limitless")
	v.AutomaticEnv()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("auth_token", "")

	v.SetConfigName("limitless")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("config: %v, falling back to environment and defaults", err)
		}
	}

	return config{
		listenAddr: v.GetString("listen_addr"),
		authToken:  v.GetString("auth_token"),
		corsOrigin: v.GetString("cors_origin"),
	}
}

func newServer(book *engine.OrderBook, authToken, corsOrigin string) *server {
	s := &server{
		book:       book,
		tradeHub:   newHub[engine.Trades](),
		bookHub:    newHub[engine.BookView](),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		authToken:  authToken,
		corsOrigin: corsOrigin,
	}

	go s.consumeTrades()
	go s.consumeBookUpdates()
	return s
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.Handle("/orders", s.withCORS(s.withAuth(http.HandlerFunc(s.handleOrder)))).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/orders/{id}", s.withCORS(s.withAuth(http.HandlerFunc(s.handleCancelOrder)))).Methods(http.MethodDelete, http.MethodOptions)
	r.Handle("/book", s.withCORS(s.withAuth(http.HandlerFunc(s.handleSnapshot)))).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/ws/trades", s.withCORS(s.withAuth(http.HandlerFunc(s.handleTradeStream)))).Methods(http.MethodGet)
	r.Handle("/ws/book", s.withCORS(s.withAuth(http.HandlerFunc(s.handleBookStream)))).Methods(http.MethodGet)
	return r
}

func (s *server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	order, err := buildOrder(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	trades := s.book.AddOrder(order)
	writeJSON(w, http.StatusAccepted, orderResponse{Status: "accepted", Trades: toPublicTrades(trades)})
}

func (s *server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}
	s.book.CancelOrder(engine.OrderID(id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	bids, asks := s.book.GetOrderInfos()

	var view snapshotResponse
	if len(bids) > 0 {
		view.BestBid = toPublicLevel(&bids[0])
	}
	if len(asks) > 0 {
		view.BestAsk = toPublicLevel(&asks[0])
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.tradeHub.Subscribe(32)
	defer s.tradeHub.Unsubscribe(sub)

	for trades := range sub.ch {
		msg := outboundMessage{Type: "trade", Data: toPublicTrades(trades)}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (s *server) handleBookStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.bookHub.Subscribe(32)
	defer s.bookHub.Unsubscribe(sub)

	for view := range sub.ch {
		msg := outboundMessage{Type: "book", Data: snapshotResponse{
			BestBid: toPublicLevel(view.BestBid),
			BestAsk: toPublicLevel(view.BestAsk),
		}}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (s *server) consumeTrades() {
	for trades := range s.book.Trades() {
		s.tradeHub.Broadcast(trades)
	}
}

func (s *server) consumeBookUpdates() {
	for view := range s.book.BookUpdates() {
		s.bookHub.Broadcast(view)
	}
}

func buildOrder(req orderRequest) (*engine.Order, error) {
	if req.ID == "" {
		return nil, errors.New("id is required")
	}
	if req.Quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}

	side, err := parseSide(req.Side)
	if err != nil {
		return nil, err
	}
	orderType, err := parseOrderType(req.Type)
	if err != nil {
		return nil, err
	}

	id := engine.OrderID(req.ID)
	qty := engine.Quantity(req.Quantity)
	if orderType == engine.Market {
		return engine.NewMarketOrder(id, side, qty), nil
	}
	return engine.NewOrder(orderType, id, side, engine.Price(req.Price), qty), nil
}

func parseSide(value string) (engine.Side, error) {
	switch strings.ToLower(value) {
	case "buy", "bid", "b":
		return engine.Buy, nil
	case "sell", "ask", "s":
		return engine.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %s", value)
	}
}

func parseOrderType(value string) (engine.OrderType, error) {
	switch strings.ToLower(value) {
	case "limit", "gtc", "good_till_cancel", "":
		return engine.GoodTillCancel, nil
	case "gfd", "good_for_day":
		return engine.GoodForDay, nil
	case "fak", "fill_and_kill":
		return engine.FillAndKill, nil
	case "fok", "fill_or_kill":
		return engine.FillOrKill, nil
	case "market", "mkt":
		return engine.Market, nil
	default:
		return 0, fmt.Errorf("unknown order type %s", value)
	}
}

func toPublicLevel(level *engine.LevelInfo) *publicLevel {
	if level == nil {
		return nil
	}
	return &publicLevel{Price: float64(level.Price), Quantity: int64(level.Quantity)}
}

func toPublicTrades(trades engine.Trades) []publicTrade {
	out := make([]publicTrade, 0, len(trades))
	for _, t := range trades {
		out = append(out, publicTrade{
			BuyOrderID:  string(t.Bid.OrderID),
			SellOrderID: string(t.Ask.OrderID),
			Price:       float64(t.Ask.Price),
			Quantity:    int64(t.Bid.Quantity),
		})
	}
	return out
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

