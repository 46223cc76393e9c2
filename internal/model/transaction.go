package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Transaction represents a single card transaction from any statement source.
type Transaction struct {
	Date        time.Time
	ID          string
	Description string // Raw statement description
	Merchant    string // Cleaned merchant name
	AccountID   string
	Hash        string
	Type        string // e.g., DEBIT, CHECK, PAYMENT, ATM
	CheckNumber string
	Amount      float64
	Matched     bool
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Description,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
