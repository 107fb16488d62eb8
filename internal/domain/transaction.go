package domain

// TransactionInfo is a matched transaction forwarded to consumers.
type TransactionInfo struct {
	// Signature is the base58-encoded first signature of the transaction.
	Signature string `json:"signature"`
	// Slot the transaction was processed in (0 if the update carried none).
	Slot uint64 `json:"slot"`
}
