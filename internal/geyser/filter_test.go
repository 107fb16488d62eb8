package geyser

import (
	"testing"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSubscription_SingleFilter(t *testing.T) {
	req := BuildSubscription([]string{"ACC1", "ACC2", "ACC1"}, "PUMPFUN_ID", true)

	require.Len(t, req.Transactions, 1)
	f, ok := req.Transactions[DefaultFilterName]
	require.True(t, ok)

	assert.Equal(t, []string{"ACC1", "ACC2"}, f.AccountInclude)
	assert.Equal(t, []string{"PUMPFUN_ID"}, f.AccountRequired)
	assert.True(t, f.ExcludeFailed)
	assert.Equal(t, CommitmentProcessed, req.Commitment)
}

func TestBuildSubscription_EmptyAccepted(t *testing.T) {
	req := BuildSubscription(nil, "", false)

	f := req.Transactions[DefaultFilterName]
	assert.Empty(t, f.AccountInclude)
	assert.Equal(t, []string{""}, f.AccountRequired)
	assert.False(t, f.ExcludeFailed)
}

func TestSubscriptionRequest_Proto(t *testing.T) {
	req := BuildSubscription([]string{"ACC1"}, "PUMPFUN_ID", true).
		WithCommitment(CommitmentConfirmed)

	msg := req.Proto()
	require.Len(t, msg.Transactions, 1)

	f := msg.Transactions[DefaultFilterName]
	require.NotNil(t, f)
	assert.Equal(t, []string{"ACC1"}, f.AccountInclude)
	assert.Equal(t, []string{"PUMPFUN_ID"}, f.AccountRequired)
	require.NotNil(t, f.Failed)
	assert.False(t, *f.Failed, "excluding failed transactions sends failed=false")
	assert.Nil(t, f.Vote)

	require.NotNil(t, msg.Commitment)
	assert.Equal(t, pb.CommitmentLevel_CONFIRMED, *msg.Commitment)
	assert.Nil(t, msg.Ping)
}

func TestSubscriptionRequest_IncludeFailed(t *testing.T) {
	msg := BuildSubscription([]string{"ACC1"}, "P", false).Proto()

	f := msg.Transactions[DefaultFilterName]
	require.NotNil(t, f.Failed)
	assert.True(t, *f.Failed)
}

func TestSubscriptionRequest_CopiesAreIndependent(t *testing.T) {
	base := BuildSubscription([]string{"ACC1"}, "P", true)
	renamed := base.WithFilterName("smart_money")
	confirmed := base.WithCommitment(CommitmentFinalized)

	_, ok := renamed.Transactions["smart_money"]
	assert.True(t, ok)
	_, ok = base.Transactions[DefaultFilterName]
	assert.True(t, ok, "renaming must not mutate the receiver")
	assert.Equal(t, CommitmentProcessed, base.Commitment)
	assert.Equal(t, CommitmentFinalized, confirmed.Commitment)

	msg := base.Proto()
	msg.Transactions[DefaultFilterName].AccountInclude[0] = "MUTATED"
	assert.Equal(t, "ACC1", base.Transactions[DefaultFilterName].AccountInclude[0])
}

func TestPingRequest(t *testing.T) {
	msg := PingRequest(7)
	require.NotNil(t, msg.Ping)
	assert.Equal(t, int32(7), msg.Ping.Id)
	assert.Empty(t, msg.Transactions)
}
