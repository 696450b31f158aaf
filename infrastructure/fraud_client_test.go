package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jackpotd/domain/entities"
	"jackpotd/domain/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func screenerStub(t *testing.T, status int, verdict screenResponse, seen *screenRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/screen", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(verdict)
	}))
}

func TestFraudClient_DisabledWithoutURL(t *testing.T) {
	client := NewFraudClient("", time.Second)

	assert.False(t, client.Enabled())
	assert.NoError(t, client.CheckBet(context.Background(), &entities.BetRequest{UserID: 1}))
}

func TestFraudClient_CleanVerdictPasses(t *testing.T) {
	var seen screenRequest
	server := screenerStub(t, http.StatusOK, screenResponse{Blocked: false, RiskScore: 0.12}, &seen)
	defer server.Close()

	client := NewFraudClient(server.URL, time.Second)
	err := client.CheckBet(context.Background(), &entities.BetRequest{
		UserID:      7,
		GameID:      10,
		WagerAmount: 300,
		SessionID:   5,
		OperatorID:  "op-eu",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), seen.UserID)
	assert.Equal(t, int64(10), seen.GameID)
	assert.Equal(t, int64(300), seen.WagerAmount)
	assert.Equal(t, int64(5), seen.SessionID)
	assert.Equal(t, "op-eu", seen.OperatorID)
}

func TestFraudClient_BlockedVerdictRejects(t *testing.T) {
	server := screenerStub(t, http.StatusOK, screenResponse{
		Blocked:        true,
		RiskScore:      0.97,
		Recommendation: "deny",
	}, nil)
	defer server.Close()

	client := NewFraudClient(server.URL, time.Second)
	err := client.CheckBet(context.Background(), &entities.BetRequest{UserID: 7, GameID: 10, WagerAmount: 300})

	var rejection *errs.SecurityRejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, int64(7), rejection.UserID)
	assert.Contains(t, rejection.Reason, "deny")
}

func TestFraudClient_ScreenerErrorFailsClosed(t *testing.T) {
	server := screenerStub(t, http.StatusInternalServerError, screenResponse{}, nil)
	defer server.Close()

	client := NewFraudClient(server.URL, time.Second)
	err := client.CheckBet(context.Background(), &entities.BetRequest{UserID: 7, GameID: 10, WagerAmount: 300})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	var rejection *errs.SecurityRejection
	assert.False(t, errors.As(err, &rejection), "outage must not look like a fraud verdict")
}

func TestFraudClient_UnreachableFailsClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewFraudClient(server.URL, 200*time.Millisecond)
	err := client.CheckBet(context.Background(), &entities.BetRequest{UserID: 7, GameID: 10, WagerAmount: 300})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestFraudClient_MalformedVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewFraudClient(server.URL, time.Second)
	err := client.CheckBet(context.Background(), &entities.BetRequest{UserID: 7, GameID: 10, WagerAmount: 300})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
