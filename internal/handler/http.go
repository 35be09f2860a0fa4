package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prediction-game/internal/domain"
	"github.com/prediction-game/internal/game"
	"github.com/prediction-game/internal/service"
)

// Ticker exposes the latest streamed market price, if any.
type Ticker interface {
	Latest() (price float64, at time.Time, ok bool)
}

// Handler provides HTTP handlers for the prediction game API
type Handler struct {
	service *service.GameService
	ticker  Ticker
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new HTTP handler. ticker may be nil when the price
// stream is disabled.
func NewHandler(service *service.GameService, ticker Ticker, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		ticker:  ticker,
		logger:  logger,
		now:     time.Now,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Player operations
		r.Route("/players", func(r chi.Router) {
			r.Post("/", h.RegisterPlayer)

			r.Route("/{playerUID}", func(r chi.Router) {
				r.Get("/", h.GetPlayer)
				r.Delete("/", h.RemovePlayer)
			})
		})

		// Round operations
		r.Route("/rounds", func(r chi.Router) {
			r.Get("/", h.ListRounds)
			r.Post("/", h.OpenRound)
			r.Get("/active", h.GetActiveRound)
			r.Post("/settle", h.SettleDue)

			r.Route("/{roundID}", func(r chi.Router) {
				r.Get("/", h.GetRound)
				r.Get("/stats", h.GetRoundStats)
				r.Get("/chart", h.GetRoundChart)
				r.Post("/predictions", h.SubmitPrediction)
			})
		})

		// Leaderboard operations
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/leaderboard/points", h.GetPointsBoard)
		r.Get("/leaderboard/points/{handle}", h.GetPointsStanding)
		r.Get("/leaderboard/{handle}", h.GetStanding)

		// Market data
		r.Get("/price", h.GetPrice)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error onto an HTTP status.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsStateError(err):
		h.writeError(w, http.StatusConflict, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// roundView is a round snapshot decorated with its derived phase and the
// countdown string clients render verbatim. Settled rounds have nothing left
// to count down, so the field is omitted.
type roundView struct {
	*domain.Round
	Phase     string `json:"phase"`
	Countdown string `json:"countdown,omitempty"`
}

func (h *Handler) roundView(round *domain.Round) roundView {
	now := h.now()
	phase := game.PhaseOf(round, now)
	view := roundView{
		Round: round,
		Phase: phase.String(),
	}
	if phase != game.PhaseSettled {
		view.Countdown = game.Countdown(round, now)
	}
	return view
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// RegisterPlayer handles player registration
func (h *Handler) RegisterPlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		IsAI bool   `json:"is_ai"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	player, err := h.service.RegisterPlayer(r.Context(), req.Name, req.IsAI)
	if err != nil {
		h.writeServiceError(w, err, "register player")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    player,
	})
}

// GetPlayer returns a player by uid
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "playerUID")
	if uid == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	player, err := h.service.Player(r.Context(), uid)
	if err != nil {
		h.writeServiceError(w, err, "get player")
		return
	}

	h.writeSuccess(w, player)
}

// RemovePlayer soft-deletes a player
func (h *Handler) RemovePlayer(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "playerUID")
	if uid == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.RemovePlayer(r.Context(), uid); err != nil {
		h.writeServiceError(w, err, "remove player")
		return
	}

	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// ListRounds returns all rounds
func (h *Handler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.service.Rounds(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "list rounds")
		return
	}

	views := make([]roundView, 0, len(rounds))
	for _, round := range rounds {
		views = append(views, h.roundView(round))
	}
	h.writeSuccess(w, views)
}

// OpenRound opens the round for the current hour
func (h *Handler) OpenRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.service.OpenRound(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "open round")
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    h.roundView(round),
	})
}

// GetActiveRound returns the round currently accepting predictions
func (h *Handler) GetActiveRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.service.ActiveRound(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "get active round")
		return
	}

	h.writeSuccess(w, h.roundView(round))
}

// SettleDue settles every round past its target time
func (h *Handler) SettleDue(w http.ResponseWriter, r *http.Request) {
	settled, err := h.service.SettleDue(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "settle due rounds")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"status":  "settled",
		"rounds":  settled,
		"settled": len(settled),
	})
}

// GetRound returns a round by id
func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, err := roundID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	round, err := h.service.Round(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get round")
		return
	}

	h.writeSuccess(w, h.roundView(round))
}

// GetRoundStats returns per-choice tallies and participants for a round
func (h *Handler) GetRoundStats(w http.ResponseWriter, r *http.Request) {
	id, err := roundID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	stats, err := h.service.RoundStats(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get round stats")
		return
	}

	h.writeSuccess(w, struct {
		Phase        string             `json:"phase"`
		PerChoice    []game.ChoiceStat  `json:"per_choice"`
		Participants []game.Participant `json:"participants"`
	}{
		Phase:        stats.Phase.String(),
		PerChoice:    stats.PerChoice,
		Participants: stats.Participants,
	})
}

// GetRoundChart returns the overlay series for a round's chart
func (h *Handler) GetRoundChart(w http.ResponseWriter, r *http.Request) {
	id, err := roundID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	overlays, err := h.service.RoundOverlays(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get round chart")
		return
	}

	h.writeSuccess(w, overlays)
}

// SubmitPrediction records a player's choice for a round
func (h *Handler) SubmitPrediction(w http.ResponseWriter, r *http.Request) {
	id, err := roundID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.PlayerUID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.Choice == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrNoChoice)
		return
	}

	pred, round, err := h.service.SubmitPrediction(r.Context(), id, req.PlayerUID, req.Choice)
	if err != nil {
		h.writeServiceError(w, err, "submit prediction")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"prediction": pred,
		"round":      h.roundView(round),
	})
}

// GetLeaderboard returns every active player ranked by points
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Leaderboard(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "get leaderboard")
		return
	}

	h.writeSuccess(w, entries)
}

// GetPointsBoard returns the top players by raw points, served from the
// cache mirror when it is warm
func (h *Handler) GetPointsBoard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	board, err := h.service.PointsBoard(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err, "get points board")
		return
	}

	h.writeSuccess(w, board)
}

// GetPointsStanding returns a single player's position on the points board
func (h *Handler) GetPointsStanding(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	standing, err := h.service.PointsStanding(r.Context(), handle)
	if err != nil {
		h.writeServiceError(w, err, "get points standing")
		return
	}

	h.writeSuccess(w, standing)
}

// GetStanding returns a single player's leaderboard row
func (h *Handler) GetStanding(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	entry, err := h.service.Standing(r.Context(), handle)
	if err != nil {
		h.writeServiceError(w, err, "get standing")
		return
	}

	h.writeSuccess(w, entry)
}

// GetPrice returns the latest streamed market price
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	if h.ticker == nil {
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrInternalError)
		return
	}

	price, at, ok := h.ticker.Latest()
	if !ok {
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"price":     price,
		"timestamp": at.UnixMilli(),
	})
}

func roundID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "roundID"), 10, 64)
}
