package model

import "time"

// Receipt is the read model the matching engine consumes. Extraction happens
// upstream in a document-intelligence service; by the time a receipt reaches
// the core it is just vendor text, an amount, and a date.
type Receipt struct {
	Date              time.Time
	ID                string
	Vendor            string
	GLCode            string
	Department        string
	Amount            float64
	ExtractConfidence float64
}
