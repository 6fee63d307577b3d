package types

// CommitContext carries the ledger-commit metadata that every emitted event
// additionally reports (block number, block timestamp, transaction hash).
// Engines never read it; they only thread it through to event construction.
type CommitContext struct {
	BlockNumber     uint64
	BlockTimestamp  int64
	TransactionHash [32]byte
}
