package domain

// Record is a single retrievable course. Records are immutable once admitted to a store.
type Record struct {
	ID       string
	Subject  string
	Code     string
	Title    string
	Credits  string
	Semester string
	Prereq   string
	Info     string
	Link     string
	// CombinedText is the embedding input. Never empty for stored records.
	CombinedText string
}

// Embedding is a fixed-length vector produced by a single embedding model.
type Embedding []float32

// Entry pairs a record with its precomputed embedding.
type Entry struct {
	Record    Record
	Embedding Embedding
}

// RankedResult is a record with its similarity score against a query.
type RankedResult struct {
	Record Record
	Score  float64
}
