// Package match implements receipt-to-transaction matching: additive scoring
// of candidate pairs followed by greedy exclusive assignment.
package match

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/service"
)

const (
	// proposalThreshold is the minimum total score for a pair to become a
	// proposal.
	proposalThreshold = 70

	// Amount sub-scores. Exact means within rounding noise.
	amountExactTolerance = 0.10
	amountCloseTolerance = 1.00
	scoreAmountExact     = 40
	scoreAmountClose     = 20

	// Date sub-scores by gap in days.
	scoreDateSameDay = 35
	scoreDateNearby  = 25
	scoreDateWeek    = 10

	// Vendor sub-scores.
	scoreVendorAlias     = 25
	scoreVendorFuzzy     = 15
	vendorFuzzyThreshold = 0.7

	defaultWorkers = 4
)

// Confirmer receives confirmed matches for learning.
type Confirmer interface {
	RecordMatchConfirmation(ctx context.Context, receipt model.Receipt, txn model.Transaction) error
}

// Config holds configuration options for the matching engine.
type Config struct {
	Workers int
}

// Engine scores receipt and transaction pairs and assigns matches. It reads
// vendor aliases from the learned store but never consults inference tiers.
type Engine struct {
	store     service.LearnedStore
	confirmer Confirmer
	workers   int
}

// NewEngine creates a matching engine.
func NewEngine(store service.LearnedStore, confirmer Confirmer, cfg Config) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Engine{store: store, confirmer: confirmer, workers: workers}
}

// candidate is one scored pair, carried through the reduction step with its
// slice positions so assignment can mark both sides used.
type candidate struct {
	proposal   model.MatchProposal
	receiptIdx int
	txnIdx     int
}

// ProposeMatches scores every receipt against every unmatched transaction and
// returns at most one proposal per receipt, with each transaction assigned to
// at most one receipt. Scoring runs across a worker pool; assignment is a
// single-threaded highest-score-first reduction so two receipts can never be
// handed the same transaction.
func (e *Engine) ProposeMatches(ctx context.Context, receipts []model.Receipt, transactions []model.Transaction) ([]model.MatchProposal, error) {
	if len(receipts) == 0 || len(transactions) == 0 {
		return nil, nil
	}

	// Resolve each transaction's alias once up front so the scoring phase
	// stays free of store access.
	canonical := make([]string, len(transactions))
	for i, txn := range transactions {
		if txn.Matched {
			continue
		}
		alias, err := e.store.FindAliasMatching(ctx, model.NormalizeVendor(txn.Description))
		if err != nil {
			return nil, fmt.Errorf("failed to look up alias for transaction %s: %w", txn.ID, err)
		}
		if alias != nil {
			canonical[i] = model.NormalizeVendor(alias.CanonicalName)
		}
	}

	perReceipt := make([][]candidate, len(receipts))

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for i, receipt := range receipts {
		wg.Add(1)
		go func(i int, receipt model.Receipt) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var candidates []candidate
			for j, txn := range transactions {
				if txn.Matched {
					continue
				}
				proposal := scorePair(receipt, txn, canonical[j])
				if proposal.Score >= proposalThreshold {
					candidates = append(candidates, candidate{proposal: proposal, receiptIdx: i, txnIdx: j})
				}
			}
			perReceipt[i] = candidates
		}(i, receipt)
	}
	wg.Wait()

	var all []candidate
	for _, candidates := range perReceipt {
		all = append(all, candidates...)
	}

	return assign(all, len(receipts), len(transactions)), nil
}

// assign performs greedy highest-score-first assignment. Ties prefer the
// smaller date gap, then the smaller amount gap.
func assign(candidates []candidate, receiptCount, txnCount int) []model.MatchProposal {
	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.proposal.Score != cb.proposal.Score {
			return ca.proposal.Score > cb.proposal.Score
		}
		if ca.proposal.DateDiffDays != cb.proposal.DateDiffDays {
			return ca.proposal.DateDiffDays < cb.proposal.DateDiffDays
		}
		return ca.proposal.AmountDiff < cb.proposal.AmountDiff
	})

	receiptUsed := make([]bool, receiptCount)
	txnUsed := make([]bool, txnCount)

	var proposals []model.MatchProposal
	for _, c := range candidates {
		if receiptUsed[c.receiptIdx] || txnUsed[c.txnIdx] {
			continue
		}
		receiptUsed[c.receiptIdx] = true
		txnUsed[c.txnIdx] = true
		proposals = append(proposals, c.proposal)
	}

	return proposals
}

// scorePair computes the additive 100-point score for one pair. The amount,
// date, and vendor sub-scores are each commutative in the two records.
func scorePair(receipt model.Receipt, txn model.Transaction, canonicalVendor string) model.MatchProposal {
	proposal := model.MatchProposal{
		ReceiptID:     receipt.ID,
		TransactionID: txn.ID,
	}

	// Statement amounts are signed; receipts are not.
	amountDiff := math.Abs(math.Abs(receipt.Amount) - math.Abs(txn.Amount))
	proposal.AmountDiff = amountDiff
	switch {
	case amountDiff <= amountExactTolerance:
		proposal.Score += scoreAmountExact
		proposal.MatchReasons = append(proposal.MatchReasons, "amount exact")
	case amountDiff <= amountCloseTolerance:
		proposal.Score += scoreAmountClose
		proposal.MatchReasons = append(proposal.MatchReasons, "amount close")
	}

	dateDiff := dayDiff(receipt.Date, txn.Date)
	proposal.DateDiffDays = dateDiff
	switch {
	case dateDiff <= 1:
		proposal.Score += scoreDateSameDay
		proposal.MatchReasons = append(proposal.MatchReasons, "date within 1 day")
	case dateDiff <= 3:
		proposal.Score += scoreDateNearby
		proposal.MatchReasons = append(proposal.MatchReasons, "date within 3 days")
	case dateDiff <= 7:
		proposal.Score += scoreDateWeek
		proposal.MatchReasons = append(proposal.MatchReasons, "date within 7 days")
	}

	receiptVendor := model.NormalizeVendor(receipt.Vendor)
	txnVendor := model.NormalizeVendor(txn.Description)
	switch {
	case canonicalVendor != "" && canonicalVendor == receiptVendor:
		proposal.Score += scoreVendorAlias
		proposal.MatchReasons = append(proposal.MatchReasons, "vendor alias")
	case similarity(receiptVendor, txnVendor) > vendorFuzzyThreshold:
		proposal.Score += scoreVendorFuzzy
		proposal.MatchReasons = append(proposal.MatchReasons, "vendor similar")
	}

	return proposal
}

// dayDiff returns the absolute calendar-day gap between two timestamps.
func dayDiff(a, b time.Time) int {
	a = a.Truncate(24 * time.Hour)
	b = b.Truncate(24 * time.Hour)
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// ConfirmMatch records a user-accepted proposal with the learning loop. The
// caller supplies the full read models since the engine holds no receipt or
// transaction storage.
func (e *Engine) ConfirmMatch(ctx context.Context, receipt model.Receipt, txn model.Transaction) error {
	if e.confirmer == nil {
		return nil
	}
	if err := e.confirmer.RecordMatchConfirmation(ctx, receipt, txn); err != nil {
		return fmt.Errorf("failed to record confirmation: %w", err)
	}
	return nil
}
