package config

import (
	"errors"
	"fmt"

	"solana-tx-monitor/internal/solana"
)

// Validate checks cfg and returns the target accounts that are off the
// ed25519 curve (program-derived). Off-curve targets are not an error.
func (c Config) Validate() ([]string, error) {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.BusCapacity < 1 {
		errs = append(errs, fmt.Errorf("bus_capacity must be positive, got %d", c.BusCapacity))
	}
	if c.Connection.MaxDecodingMessageSize < 0 {
		errs = append(errs, fmt.Errorf("max_decoding_message_size must not be negative"))
	}

	if c.RequiredProgram == "" {
		errs = append(errs, errors.New("required_program is required"))
	} else if _, err := solana.DecodePublicKey(c.RequiredProgram); err != nil {
		errs = append(errs, fmt.Errorf("required_program: %w", err))
	}

	var offCurve []string
	for _, acct := range c.TargetAccounts {
		key, err := solana.DecodePublicKey(acct)
		if err != nil {
			errs = append(errs, fmt.Errorf("target_accounts: %w", err))
			continue
		}
		if !solana.IsOnCurve(key) {
			offCurve = append(offCurve, acct)
		}
	}

	return offCurve, errors.Join(errs...)
}
