package model

// MatchProposal pairs a receipt with its best candidate transaction. Proposals
// are transient: the engine hands them to the caller and holds no reference
// past the call that produced them.
type MatchProposal struct {
	ReceiptID     string
	TransactionID string
	MatchReasons  []string
	Score         int     // 0-100
	AmountDiff    float64 // absolute difference in dollars
	DateDiffDays  int     // absolute difference in days
}
