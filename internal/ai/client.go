// Package ai provides the optional language-model classification pass that
// runs after rule evaluation. It is a thin client beside the engine: rule
// verdicts are never changed, the model only adds advisory annotations.
package ai

import (
	"context"

	"github.com/NowenCR/expense-auditor/internal/domain"
)

// MerchantQuery carries one representative transaction for a unique
// (merchant, mcc) pair, plus the rule verdict already computed for it.
type MerchantQuery struct {
	Merchant         string
	MCC              string
	Description      string
	PurchaseCategory string
	Amount           float64
	Flag             domain.Severity
	Reasons          string
}

// Client classifies a merchant with a language model.
type Client interface {
	ClassifyMerchant(ctx context.Context, q MerchantQuery) (*domain.AIAnnotation, error)
}
