package service

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
)

const maxRiskScore = 100

var minReliableScore = decimal.NewFromInt(3)

// ComputeRiskScore returns an advisory 0-100 suspicion score. It never blocks a transaction.
// at is evaluated in its own location, so callers pass the ledger's local time.
func ComputeRiskScore(points int64, account *models.Account, at time.Time) int {
	score := 0
	if points > 500 {
		score += 20
	}
	if points > 1000 {
		score += 30
	}
	if account != nil {
		if account.Status != domain.AccountStatusActive {
			score += 40
		}
		if account.ReliabilityScore.LessThan(minReliableScore) {
			score += 25
		}
	}
	if hour := at.Hour(); hour < 6 || hour > 23 {
		score += 15
	}
	return min(score, maxRiskScore)
}
