package entities

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBetRequestSanitize(t *testing.T) {
	req := &BetRequest{
		OperatorID:     "op-\x00eu\n",
		AffiliateName:  "aff\tcasino\r\npartner",
		IdempotencyKey: "round\x1b[31m-42",
	}

	req.Sanitize()

	assert.Equal(t, "op-eu", req.OperatorID)
	assert.Equal(t, "affcasinopartner", req.AffiliateName)
	assert.Equal(t, "round[31m-42", req.IdempotencyKey)
}

func TestBetRequestSanitizeTruncates(t *testing.T) {
	req := &BetRequest{
		OperatorID:     strings.Repeat("a", MaxOperatorIDLength+10),
		AffiliateName:  strings.Repeat("b", MaxAffiliateNameLength+1),
		IdempotencyKey: strings.Repeat("c", MaxIdempotencyKeyLength*2),
	}

	req.Sanitize()

	assert.Len(t, req.OperatorID, MaxOperatorIDLength)
	assert.Len(t, req.AffiliateName, MaxAffiliateNameLength)
	assert.Len(t, req.IdempotencyKey, MaxIdempotencyKeyLength)
}

func TestBetRequestSanitizeLeavesCleanInput(t *testing.T) {
	req := &BetRequest{OperatorID: "op-eu", AffiliateName: "partner casino", IdempotencyKey: "round-42"}

	req.Sanitize()

	assert.Equal(t, "op-eu", req.OperatorID)
	assert.Equal(t, "partner casino", req.AffiliateName)
	assert.Equal(t, "round-42", req.IdempotencyKey)
}

func TestGrossGamingRevenue(t *testing.T) {
	assert.Equal(t, int64(-300), (&SettlementResult{WagerAmount: 300, WinAmount: 600}).GrossGamingRevenue())
	assert.Equal(t, int64(300), (&SettlementResult{WagerAmount: 300}).GrossGamingRevenue())
	assert.Equal(t, int64(0), (&SettlementResult{WagerAmount: 300, WinAmount: 300}).GrossGamingRevenue())
}
