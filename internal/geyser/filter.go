package geyser

import (
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// DefaultFilterName labels the single transaction filter in a request.
// The server echoes it back in SubscribeUpdate.Filters and otherwise ignores it.
const DefaultFilterName = "transactions"

// CommitmentLevel is passed through to the server unchanged.
type CommitmentLevel int32

// Commitment levels understood by the server.
const (
	CommitmentProcessed CommitmentLevel = CommitmentLevel(pb.CommitmentLevel_PROCESSED)
	CommitmentConfirmed CommitmentLevel = CommitmentLevel(pb.CommitmentLevel_CONFIRMED)
	CommitmentFinalized CommitmentLevel = CommitmentLevel(pb.CommitmentLevel_FINALIZED)
)

// TransactionFilter selects transactions on the server side.
type TransactionFilter struct {
	// AccountInclude matches transactions touching any of these accounts.
	AccountInclude []string
	// AccountRequired matches transactions touching all of these accounts.
	AccountRequired []string
	// ExcludeFailed drops transactions that failed on chain.
	ExcludeFailed bool
}

// SubscriptionRequest is the filter payload sent once per stream.
type SubscriptionRequest struct {
	Transactions map[string]TransactionFilter
	Commitment   CommitmentLevel
}

// BuildSubscription builds a request with exactly one named transaction filter.
// Duplicate accounts are dropped; empty inputs are accepted and simply match nothing.
func BuildSubscription(targetAccounts []string, requiredProgram string, excludeFailed bool) SubscriptionRequest {
	return SubscriptionRequest{
		Transactions: map[string]TransactionFilter{
			DefaultFilterName: {
				AccountInclude:  dedupe(targetAccounts),
				AccountRequired: []string{requiredProgram},
				ExcludeFailed:   excludeFailed,
			},
		},
		Commitment: CommitmentProcessed,
	}
}

// WithCommitment returns a copy of r using commitment c.
func (r SubscriptionRequest) WithCommitment(c CommitmentLevel) SubscriptionRequest {
	r.Transactions = cloneFilters(r.Transactions)
	r.Commitment = c
	return r
}

// WithFilterName returns a copy of r with every filter stored under name.
// Requests built by BuildSubscription hold a single filter.
func (r SubscriptionRequest) WithFilterName(name string) SubscriptionRequest {
	renamed := make(map[string]TransactionFilter, len(r.Transactions))
	for _, f := range r.Transactions {
		renamed[name] = f
	}
	r.Transactions = renamed
	return r
}

// Proto renders the request as the wire message.
func (r SubscriptionRequest) Proto() *pb.SubscribeRequest {
	txs := make(map[string]*pb.SubscribeRequestFilterTransactions, len(r.Transactions))
	for name, f := range r.Transactions {
		// The wire flag means "include failed"; nil would mean "any".
		failed := !f.ExcludeFailed
		txs[name] = &pb.SubscribeRequestFilterTransactions{
			AccountInclude:  append([]string(nil), f.AccountInclude...),
			AccountRequired: append([]string(nil), f.AccountRequired...),
			Failed:          &failed,
		}
	}

	commitment := pb.CommitmentLevel(r.Commitment)
	return &pb.SubscribeRequest{
		Transactions: txs,
		Commitment:   &commitment,
	}
}

// PingRequest builds the keep-alive reply sent on the subscribe stream.
func PingRequest(id int32) *pb.SubscribeRequest {
	return &pb.SubscribeRequest{
		Ping: &pb.SubscribeRequestPing{Id: id},
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		result = append(result, v)
	}
	return result
}

func cloneFilters(in map[string]TransactionFilter) map[string]TransactionFilter {
	out := make(map[string]TransactionFilter, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
