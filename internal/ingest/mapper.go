package ingest

import (
	"strings"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Synonyms lists the accepted header names per canonical field, highest
// priority first. Keys must already be sanitized.
type Synonyms struct {
	Date     []string
	Merchant []string
	Amount   []string
	Type     []string
}

// FieldSynonyms covers the layouts exported by common Indian bank and card portals.
var FieldSynonyms = Synonyms{
	Date:     []string{"date", "transactiondate", "transaction date", "posting date"},
	Merchant: []string{"merchant", "merchant name", "description", "narration"},
	Amount:   []string{"amount", "transaction amount", "debit", "credit"},
	Type:     []string{"type", "transaction type", "mode"},
}

// BuildTransaction maps a sanitized row using FieldSynonyms.
func BuildTransaction(row domain.RawRow) (domain.Transaction, bool) {
	return FieldSynonyms.Build(row)
}

// Build maps a sanitized row to a Transaction. The first non-empty synonym
// wins for each field. Rows without a merchant or with an unparseable amount
// report false and are meant to be skipped, not surfaced as errors.
func (s Synonyms) Build(row domain.RawRow) (domain.Transaction, bool) {
	merchant := firstNonEmpty(row, s.Merchant)
	if merchant == "" {
		return domain.Transaction{}, false
	}

	amount, ok := ParseAmount(firstNonEmpty(row, s.Amount))
	if !ok {
		return domain.Transaction{}, false
	}

	rawDate := firstNonEmpty(row, s.Date)
	date, ok := ParseDateFlexible(rawDate)
	if !ok {
		date = rawDate
	}

	txType := firstNonEmpty(row, s.Type)
	if txType == "" {
		txType = domain.DefaultTransactionType
	}

	return domain.Transaction{
		Date:     date,
		Merchant: merchant,
		Amount:   amount,
		Type:     txType,
		Status:   domain.StatusPending,
	}, true
}

func firstNonEmpty(row domain.RawRow, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); v != "" {
			return v
		}
	}
	return ""
}
