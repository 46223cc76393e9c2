package model

// ExpenseEmbedding is one stored embedding row. Verified rows come from
// user-confirmed selections and are the only rows eligible to serve as
// authoritative similarity hits; raw model output is stored unverified.
type ExpenseEmbedding struct {
	ID         string
	VectorText string
	GLCode     string
	Department string
	Vector     []float32
	Verified   bool
}
