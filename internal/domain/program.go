package domain

// Well-known program IDs.
const (
	// PumpFun is the pump.fun bonding curve program.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)
