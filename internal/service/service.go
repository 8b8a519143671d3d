// Package service provides the HTTP handlers and business logic for
// creating markets, recording wagers, and querying prices, risk, and
// market-making quotes.
//
// Monetary values use shopspring/decimal at this boundary — never float64
// for money. Conversion to the kernel's float64 domain happens here, once.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foldmarket/market-engine/internal/lmsr"
	"github.com/foldmarket/market-engine/internal/market"
	"github.com/foldmarket/market-engine/internal/metrics"
	"github.com/foldmarket/market-engine/internal/model"
	"github.com/foldmarket/market-engine/internal/store"
)

// defaultLiquidity is used when market creation omits b.
var defaultLiquidity = decimal.NewFromInt(100)

// Service wires the pricing kernel, the per-market state cache, and the
// persistence layer behind the HTTP surface. Per-market serialization lives
// inside the state cache; the service itself holds no locks.
type Service struct {
	store  store.Store
	states *market.Store
	wsHub  *WSHub // optional hub for real-time broadcasts
}

// NewService creates a new market service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, states *market.Store, hub *WSHub) *Service {
	return &Service{
		store:  st,
		states: states,
		wsHub:  hub,
	}
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Question    string          `json:"question"`
	NumOutcomes int             `json:"num_outcomes"`
	B           decimal.Decimal `json:"b"` // liquidity parameter; 0 → default 100
}

// WagerRequest is the JSON body for POST /wagers.
type WagerRequest struct {
	MarketID     string          `json:"market_id"`
	UserID       string          `json:"user_id"`
	OutcomeIndex int             `json:"outcome_index"`
	Amount       decimal.Decimal `json:"amount"`
}

// WagerResponse is returned from POST /wagers.
type WagerResponse struct {
	WagerID          string                   `json:"wager_id"`
	MarketID         string                   `json:"market_id"`
	OutcomeIndex     int                      `json:"outcome_index"`
	Amount           decimal.Decimal          `json:"amount"`
	Probabilities    []float64                `json:"probabilities"`
	Confidence       market.ConfidenceMetrics `json:"confidence"`
	ManipulationFlag bool                     `json:"manipulation_flag"`
	FlagReasons      []string                 `json:"flag_reasons,omitempty"`
	RiskLevel        string                   `json:"risk_level"`
	TotalVolume      float64                  `json:"total_volume"`
}

// QuoteCostRequest is the JSON body for POST /markets/{id}/quote.
type QuoteCostRequest struct {
	OutcomeIndex int             `json:"outcome_index"`
	ShareAmount  decimal.Decimal `json:"share_amount"`
}

// QuoteCostResponse returns the average-price cost approximation next to
// the closed-form LMSR cost so the deviation between the two stays visible.
type QuoteCostResponse struct {
	OutcomeIndex int     `json:"outcome_index"`
	ShareAmount  float64 `json:"share_amount"`
	Cost         float64 `json:"cost"`
	ExactCost    float64 `json:"exact_cost"`
	CurrentPrice float64 `json:"current_price"`
}

// --- HTTP Handlers ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	b := req.B
	if b.LessThanOrEqual(decimal.Zero) {
		b = defaultLiquidity
	}

	// Validate the configuration can construct a kernel.
	if _, err := lmsr.New(b.InexactFloat64(), req.NumOutcomes); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	uniform := make([]float64, req.NumOutcomes)
	for i := range uniform {
		uniform[i] = 1 / float64(req.NumOutcomes)
	}

	m := &model.Market{
		ID:            uuid.New().String(),
		Question:      req.Question,
		NumOutcomes:   req.NumOutcomes,
		B:             b,
		Volumes:       make([]float64, req.NumOutcomes),
		TotalVolume:   0,
		Probabilities: uniform,
		Status:        "open",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	ctx := r.Context()
	if err := s.store.CreateMarket(ctx, m); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("market created",
		"id", m.ID,
		"outcomes", m.NumOutcomes,
		"b", b.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	m, err := s.store.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markets)
}

// GetProbabilities handles GET /api/v1/markets/{marketID}/probabilities
//
// Stateless path: volumes are derived by summing the persisted wager
// ledger, then priced through the kernel. No decay or learning adjustment
// applies here — this is the pure volume-based view.
func (s *Service) GetProbabilities(w http.ResponseWriter, r *http.Request) {
	m, eng, ok := s.marketEngine(w, r)
	if !ok {
		return
	}

	totals, err := s.store.GetOutcomeTotals(r.Context(), m.ID, m.NumOutcomes)
	if err != nil {
		writeError(w, "failed to aggregate wagers", http.StatusInternalServerError)
		return
	}

	probs, err := eng.Probabilities(totals)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"market_id":     m.ID,
		"probabilities": probs,
	})
}

// GetPrice handles GET /api/v1/markets/{marketID}/price?outcome=i
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	m, eng, ok := s.marketEngine(w, r)
	if !ok {
		return
	}

	outcome, err := strconv.Atoi(r.URL.Query().Get("outcome"))
	if err != nil {
		writeError(w, "outcome query parameter must be an integer", http.StatusBadRequest)
		return
	}

	totals, err := s.store.GetOutcomeTotals(r.Context(), m.ID, m.NumOutcomes)
	if err != nil {
		writeError(w, "failed to aggregate wagers", http.StatusInternalServerError)
		return
	}

	price, err := eng.Price(totals, outcome)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"market_id": m.ID,
		"outcome":   outcome,
		"price":     price,
	})
}

// QuoteCost handles POST /api/v1/markets/{marketID}/quote
func (s *Service) QuoteCost(w http.ResponseWriter, r *http.Request) {
	m, eng, ok := s.marketEngine(w, r)
	if !ok {
		return
	}

	var req QuoteCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	shares := req.ShareAmount.InexactFloat64()

	totals, err := s.store.GetOutcomeTotals(r.Context(), m.ID, m.NumOutcomes)
	if err != nil {
		writeError(w, "failed to aggregate wagers", http.StatusInternalServerError)
		return
	}

	cost, err := eng.Cost(totals, req.OutcomeIndex, shares)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	exact, err := eng.ExactTradeCost(totals, req.OutcomeIndex, shares)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	price, err := eng.Price(totals, req.OutcomeIndex)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QuoteCostResponse{
		OutcomeIndex: req.OutcomeIndex,
		ShareAmount:  shares,
		Cost:         cost,
		ExactCost:    exact,
		CurrentPrice: price,
	})
}

// GetRisk handles GET /api/v1/markets/{marketID}/risk
func (s *Service) GetRisk(w http.ResponseWriter, r *http.Request) {
	m, eng, ok := s.marketEngine(w, r)
	if !ok {
		return
	}

	totals, err := s.store.GetOutcomeTotals(r.Context(), m.ID, m.NumOutcomes)
	if err != nil {
		writeError(w, "failed to aggregate wagers", http.StatusInternalServerError)
		return
	}

	profile, err := eng.AssessRisk(totals)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

// GetMarketMakingQuotes handles GET /api/v1/markets/{marketID}/quotes
func (s *Service) GetMarketMakingQuotes(w http.ResponseWriter, r *http.Request) {
	m, eng, ok := s.marketEngine(w, r)
	if !ok {
		return
	}

	totals, err := s.store.GetOutcomeTotals(r.Context(), m.ID, m.NumOutcomes)
	if err != nil {
		writeError(w, "failed to aggregate wagers", http.StatusInternalServerError)
		return
	}

	quote, err := eng.Quote(totals)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quote)
}

// GetMarketHistory handles GET /api/v1/markets/{marketID}/history
func (s *Service) GetMarketHistory(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	wagers, err := s.store.GetWagersByMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "failed to get market history", http.StatusInternalServerError)
		return
	}
	if wagers == nil {
		wagers = []model.WagerRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wagers)
}

// GetUserWagers handles GET /api/v1/users/{userID}/wagers
func (s *Service) GetUserWagers(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	wagers, err := s.store.GetWagersByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to get user wagers", http.StatusInternalServerError)
		return
	}
	if wagers == nil {
		wagers = []model.WagerRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wagers)
}

// RecordWager handles POST /api/v1/wagers
//
// Stateful path: the wager flows through the per-market cache (decay →
// heuristics → accumulate → recompute), then the committed state is
// persisted and broadcast.
func (s *Service) RecordWager(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req WagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	m, err := s.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		writeError(w, "market not found: "+req.MarketID, http.StatusNotFound)
		return
	}
	if m.Status != "open" {
		writeError(w, "market is not open for wagers", http.StatusConflict)
		return
	}

	st, created, err := s.states.Acquire(m.ID, m.B.InexactFloat64(), m.NumOutcomes)
	if err != nil {
		writeError(w, "internal error: invalid market configuration", http.StatusInternalServerError)
		return
	}
	if created {
		// First touch since process start: continue from the persisted
		// snapshot instead of a cold entry.
		if err := st.Restore(market.Snapshot{
			Volumes:       m.Volumes,
			TotalVolume:   m.TotalVolume,
			Probabilities: m.Probabilities,
			UpdatedAt:     m.UpdatedAt,
		}); err != nil {
			slog.Warn("snapshot restore failed, starting cold", "market", m.ID, "err", err)
		}
		metrics.ActiveMarkets.Set(float64(s.states.Len()))
	}

	now := time.Now().UTC()
	res, err := st.RecordWager(market.Bet{
		OutcomeIndex: req.OutcomeIndex,
		Amount:       req.Amount.InexactFloat64(),
	}, now)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// Persist from one atomic snapshot; mixing it with this wager's result
	// could pair volumes from a later concurrent wager with stale totals.
	snap := st.Snapshot()
	if err := s.store.UpdateMarketState(ctx, m.ID, snap.Volumes, snap.TotalVolume, snap.Probabilities, snap.UpdatedAt); err != nil {
		writeError(w, "failed to persist market state", http.StatusInternalServerError)
		return
	}

	record := &model.WagerRecord{
		ID:           uuid.New().String(),
		MarketID:     m.ID,
		UserID:       req.UserID,
		OutcomeIndex: req.OutcomeIndex,
		Amount:       req.Amount,
		Flagged:      res.Flagged,
		RiskLevel:    string(res.RiskLevel),
		CreatedAt:    now,
	}
	if err := s.store.InsertWager(ctx, record); err != nil {
		writeError(w, "failed to record wager", http.StatusInternalServerError)
		return
	}

	metrics.WagersTotal.WithLabelValues(strconv.FormatBool(res.Flagged)).Inc()
	for _, reason := range res.FlagReasons {
		metrics.ManipulationFlags.WithLabelValues(reason).Inc()
	}
	metrics.WagerLatency.Observe(time.Since(start).Seconds())

	slog.Info("wager recorded",
		"wager_id", record.ID,
		"market", m.ID,
		"user", req.UserID,
		"outcome", req.OutcomeIndex,
		"amount", req.Amount.String(),
		"flagged", res.Flagged,
		"risk_level", res.RiskLevel,
	)
	if res.Flagged {
		slog.Warn("manipulation heuristics fired",
			"wager_id", record.ID,
			"market", m.ID,
			"reasons", res.FlagReasons,
		)
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:          "wager_recorded",
			MarketID:      m.ID,
			OutcomeIndex:  req.OutcomeIndex,
			Amount:        req.Amount.String(),
			Probabilities: res.Probabilities,
			Flagged:       res.Flagged,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(WagerResponse{
		WagerID:          record.ID,
		MarketID:         m.ID,
		OutcomeIndex:     req.OutcomeIndex,
		Amount:           req.Amount,
		Probabilities:    res.Probabilities,
		Confidence:       res.Confidence,
		ManipulationFlag: res.Flagged,
		FlagReasons:      res.FlagReasons,
		RiskLevel:        string(res.RiskLevel),
		TotalVolume:      res.TotalVolume,
	})
}

// marketEngine loads the market and constructs its kernel, writing the
// error response on failure.
func (s *Service) marketEngine(w http.ResponseWriter, r *http.Request) (*model.Market, *lmsr.Engine, bool) {
	marketID := chi.URLParam(r, "marketID")

	m, err := s.store.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return nil, nil, false
	}

	eng, err := lmsr.New(m.B.InexactFloat64(), m.NumOutcomes)
	if err != nil {
		writeError(w, "internal error: invalid market configuration", http.StatusInternalServerError)
		return nil, nil, false
	}
	return m, eng, true
}

// writeEngineError maps kernel and cache errors onto HTTP statuses:
// caller-correctable input errors are 400s, numeric instability is a 500.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lmsr.ErrNumericInstability):
		writeError(w, err.Error(), http.StatusInternalServerError)
	case errors.Is(err, lmsr.ErrIndexOutOfRange),
		errors.Is(err, lmsr.ErrInvalidShareAmount),
		errors.Is(err, lmsr.ErrNegativeVolume),
		errors.Is(err, lmsr.ErrVectorLength),
		errors.Is(err, lmsr.ErrTooFewOutcomes),
		errors.Is(err, lmsr.ErrInvalidLiquidity),
		errors.Is(err, market.ErrInvalidAmount):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
