package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"jackpotd/domain/entities"
	"jackpotd/domain/errs"
)

// maxRequestBody caps request payloads at 1 MiB.
const maxRequestBody = 1 << 20

// HandlerProvider carries the services the handlers delegate to.
type HandlerProvider struct {
	deps Deps
}

// NewHandlerProvider creates the handler set for the router.
func NewHandlerProvider(deps Deps) *HandlerProvider {
	return &HandlerProvider{deps: deps}
}

type settleBetRequest struct {
	entities.BetRequest
	Outcome entities.GameOutcome `json:"outcome"`
}

type settleBetResponse struct {
	*entities.SettlementResult
	GrossGamingRevenue int64  `json:"gross_gaming_revenue"`
	ContributionItemID string `json:"contribution_item_id,omitempty"`
	JackpotWinItemID   string `json:"jackpot_win_item_id,omitempty"`
}

// handleSettleBet runs the synchronous settlement and, on success,
// feeds the asynchronous jackpot pipeline. The settlement is already
// committed by the time enqueueing can fail, so admission failures
// degrade to a warning and an empty item id instead of failing the
// request.
func (p *HandlerProvider) handleSettleBet(w http.ResponseWriter, r *http.Request) {
	var req settleBetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		p.writeError(w, err)
		return
	}

	start := time.Now()
	result, err := p.deps.Bets.SettleBet(r.Context(), &req.BetRequest, &req.Outcome)
	if err != nil {
		p.deps.Metrics.SettlementsTotal.WithLabelValues(settleOutcome(err)).Inc()
		p.writeError(w, err)
		return
	}
	p.deps.Metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	p.deps.Metrics.SettlementsTotal.WithLabelValues("settled").Inc()

	resp := settleBetResponse{
		SettlementResult:   result,
		GrossGamingRevenue: result.GrossGamingRevenue(),
	}
	resp.ContributionItemID = p.enqueueSettlementContribution(r.Context(), &req.BetRequest)
	if req.Outcome.JackpotWin != nil {
		resp.JackpotWinItemID = p.enqueueSettlementWin(r.Context(), &req.BetRequest, req.Outcome.JackpotWin)
	}

	writeJSON(w, http.StatusOK, resp)
}

func settleOutcome(err error) string {
	var duplicate *errs.DuplicateSettlementError
	if errors.As(err, &duplicate) {
		return "duplicate"
	}
	return "rejected"
}

func (p *HandlerProvider) enqueueSettlementContribution(ctx context.Context, req *entities.BetRequest) string {
	id, err := p.deps.Jackpots.EnqueueContribution(ctx, req.GameID, req.UserID, req.WagerAmount, 0)
	if err != nil {
		p.deps.Metrics.EnqueuedTotal.WithLabelValues("contribution", "rejected").Inc()
		log.WithError(err).WithFields(log.Fields{
			"user_id": req.UserID,
			"game_id": req.GameID,
		}).Warn("Failed to enqueue jackpot contribution after settlement")
		return ""
	}
	p.deps.Metrics.EnqueuedTotal.WithLabelValues("contribution", "accepted").Inc()
	return id
}

func (p *HandlerProvider) enqueueSettlementWin(ctx context.Context, req *entities.BetRequest, claim *entities.JackpotWinClaim) string {
	id, err := p.deps.Jackpots.EnqueueWin(ctx, claim.Group, req.UserID, claim.Amount)
	if err != nil {
		p.deps.Metrics.EnqueuedTotal.WithLabelValues("win", "rejected").Inc()
		log.WithError(err).WithFields(log.Fields{
			"user_id": req.UserID,
			"group":   claim.Group,
		}).Warn("Failed to enqueue jackpot win after settlement")
		return ""
	}
	p.deps.Metrics.EnqueuedTotal.WithLabelValues("win", "accepted").Inc()
	return id
}

type enqueueContributionRequest struct {
	GameID      int64 `json:"game_id"`
	UserID      int64 `json:"user_id"`
	WagerAmount int64 `json:"wager_amount"`
	Priority    int   `json:"priority"`
}

func (p *HandlerProvider) handleEnqueueContribution(w http.ResponseWriter, r *http.Request) {
	var req enqueueContributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		p.writeError(w, err)
		return
	}

	id, err := p.deps.Jackpots.EnqueueContribution(r.Context(), req.GameID, req.UserID, req.WagerAmount, req.Priority)
	if err != nil {
		p.deps.Metrics.EnqueuedTotal.WithLabelValues("contribution", "rejected").Inc()
		p.writeError(w, err)
		return
	}
	p.deps.Metrics.EnqueuedTotal.WithLabelValues("contribution", "accepted").Inc()

	writeJSON(w, http.StatusAccepted, map[string]string{"item_id": id})
}

type enqueueWinRequest struct {
	Group     entities.PoolGroup `json:"group"`
	UserID    int64              `json:"user_id"`
	WinAmount int64              `json:"win_amount"`
}

func (p *HandlerProvider) handleEnqueueWin(w http.ResponseWriter, r *http.Request) {
	var req enqueueWinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		p.writeError(w, err)
		return
	}

	id, err := p.deps.Jackpots.EnqueueWin(r.Context(), req.Group, req.UserID, req.WinAmount)
	if err != nil {
		p.deps.Metrics.EnqueuedTotal.WithLabelValues("win", "rejected").Inc()
		p.writeError(w, err)
		return
	}
	p.deps.Metrics.EnqueuedTotal.WithLabelValues("win", "accepted").Inc()

	writeJSON(w, http.StatusAccepted, map[string]string{"item_id": id})
}

type grantBonusRequest struct {
	UserID    int64 `json:"user_id"`
	Amount    int64 `json:"amount"`
	Preferred bool  `json:"preferred"`
}

type grantBonusResponse struct {
	BonusID   int64     `json:"bonus_id"`
	UserID    int64     `json:"user_id"`
	Amount    int64     `json:"amount"`
	Preferred bool      `json:"preferred"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *HandlerProvider) handleGrantBonus(w http.ResponseWriter, r *http.Request) {
	var req grantBonusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		p.writeError(w, err)
		return
	}

	bonus, err := p.deps.Bonuses.GrantBonus(r.Context(), req.UserID, req.Amount, req.Preferred)
	if err != nil {
		p.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, grantBonusResponse{
		BonusID:   bonus.ID,
		UserID:    bonus.UserID,
		Amount:    bonus.Amount,
		Preferred: bonus.Preferred,
		CreatedAt: bonus.CreatedAt,
	})
}

type poolView struct {
	Group      entities.PoolGroup `json:"group"`
	Amount     int64              `json:"amount"`
	SeedAmount int64              `json:"seed_amount"`
	MaxAmount  int64              `json:"max_amount"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (p *HandlerProvider) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools, err := p.deps.Jackpots.GetPools(r.Context())
	if err != nil {
		p.writeError(w, err)
		return
	}

	views := make([]poolView, 0, len(pools))
	for _, pool := range pools {
		views = append(views, poolView{
			Group:      pool.Group,
			Amount:     pool.Amount,
			SeedAmount: pool.SeedAmount,
			MaxAmount:  pool.MaxAmount,
			UpdatedAt:  pool.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": views})
}

func (p *HandlerProvider) handleGetPoolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := p.deps.Jackpots.GetPoolStats(r.Context())
	if err != nil {
		p.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (p *HandlerProvider) handleQueueMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, p.deps.Jackpots.QueueMetrics())
}

func (p *HandlerProvider) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := p.deps.Jackpots.GetHealthStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// decodeJSON reads a capped, strict JSON body. Malformed input comes
// back as a validation error so one path maps it to 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &errs.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func errorBody(code, message string) map[string]any {
	return map[string]any{"error": code, "message": message}
}

// writeError maps domain errors onto HTTP statuses. Admission and
// capacity failures come back as retryable statuses; everything
// unrecognized is a 500 with the detail kept server-side.
func (p *HandlerProvider) writeError(w http.ResponseWriter, err error) {
	var (
		validation *errs.ValidationError
		notFound   *errs.NotFoundError
		security   *errs.SecurityRejection
		balance    *errs.InsufficientBalanceError
		duplicate  *errs.DuplicateSettlementError
		limited    *errs.RateLimitedError
		full       *errs.QueueFullError
		noTargets  *errs.NoHealthyTargetsError
		storage    *errs.StorageError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", validation.Error()))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody("not_found", notFound.Error()))
	case errors.As(err, &security):
		writeJSON(w, http.StatusForbidden, errorBody("rejected", security.Error()))
	case errors.As(err, &balance):
		body := errorBody("insufficient_balance", balance.Error())
		body["available"] = balance.Available
		writeJSON(w, http.StatusConflict, body)
	case errors.As(err, &duplicate):
		body := errorBody("duplicate_settlement", duplicate.Error())
		body["settlement_id"] = duplicate.SettlementID
		writeJSON(w, http.StatusConflict, body)
	case errors.As(err, &limited):
		if secs := int(time.Until(limited.RetryAfter).Seconds() + 0.999); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeJSON(w, http.StatusTooManyRequests,
			errorBody("rate_limited", "too many "+limited.Operation+" requests, try again"))
	case errors.As(err, &full):
		writeJSON(w, http.StatusTooManyRequests, errorBody("queue_full", "pipeline at capacity, try again"))
	case errors.As(err, &noTargets):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("no_capacity", noTargets.Error()))
	case errors.As(err, &storage):
		log.WithError(err).Error("Storage failure surfaced to HTTP")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "internal server error"))
	default:
		log.WithError(err).Error("Unhandled error surfaced to HTTP")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "internal server error"))
	}
}
