package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"jackpotd/domain/entities"
	"jackpotd/domain/errs"

	log "github.com/sirupsen/logrus"
)

// FraudClient consults the fraud-screening service before a bet is
// admitted. A blocked verdict is a terminal rejection; an unreachable
// screener fails the request rather than letting it through unscreened.
type FraudClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewFraudClient creates a client for the screening service. An empty
// baseURL disables screening entirely; every bet passes.
func NewFraudClient(baseURL string, timeout time.Duration) *FraudClient {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &FraudClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a screening endpoint is configured
func (c *FraudClient) Enabled() bool { return c.baseURL != "" }

type screenRequest struct {
	UserID      int64  `json:"user_id"`
	GameID      int64  `json:"game_id"`
	WagerAmount int64  `json:"wager_amount"`
	SessionID   int64  `json:"session_id,omitempty"`
	OperatorID  string `json:"operator_id,omitempty"`
}

type screenResponse struct {
	Blocked        bool    `json:"blocked"`
	RiskScore      float64 `json:"risk_score"`
	Recommendation string  `json:"recommendation"`
}

// CheckBet screens one bet request. Returns a SecurityRejection for a
// blocked verdict and a plain error when the screen could not run.
func (c *FraudClient) CheckBet(ctx context.Context, req *entities.BetRequest) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(screenRequest{
		UserID:      req.UserID,
		GameID:      req.GameID,
		WagerAmount: req.WagerAmount,
		SessionID:   req.SessionID,
		OperatorID:  req.OperatorID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode screen request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/screen", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build screen request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fraud screen unreachable: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fraud screen returned status %d", resp.StatusCode)
	}

	var verdict screenResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return fmt.Errorf("failed to decode screen response: %w", err)
	}

	if verdict.Blocked {
		log.WithFields(log.Fields{
			"userId":         req.UserID,
			"riskScore":      verdict.RiskScore,
			"recommendation": verdict.Recommendation,
		}).Warn("Bet blocked by fraud screen")
		return &errs.SecurityRejection{
			UserID: req.UserID,
			Reason: fmt.Sprintf("fraud screen blocked bet (%s)", verdict.Recommendation),
		}
	}
	return nil
}
