package geyser

import (
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// Event is one decoded stream update. The set of implementations is closed:
// TransactionEvent, PingEvent, PongEvent and OtherEvent.
type Event interface {
	isEvent()
}

// TransactionEvent carries a transaction matched by a subscription filter.
type TransactionEvent struct {
	Signature []byte
	Slot      uint64
	// Filters lists the names of the filters that matched.
	Filters []string
}

// PingEvent is a server keep-alive probe. It carries no correlation id.
type PingEvent struct{}

// PongEvent answers a ping previously sent by the client.
type PongEvent struct {
	ID int32
}

// OtherEvent is any update kind the monitor does not act on.
type OtherEvent struct {
	Kind string
}

func (TransactionEvent) isEvent() {}
func (PingEvent) isEvent()        {}
func (PongEvent) isEvent()        {}
func (OtherEvent) isEvent()       {}

// DecodeUpdate maps a wire update onto the closed Event set.
func DecodeUpdate(update *pb.SubscribeUpdate) Event {
	if update == nil {
		return OtherEvent{Kind: "empty"}
	}

	switch u := update.UpdateOneof.(type) {
	case *pb.SubscribeUpdate_Transaction:
		if u.Transaction == nil || u.Transaction.Transaction == nil {
			return OtherEvent{Kind: "empty_transaction"}
		}
		return TransactionEvent{
			Signature: u.Transaction.Transaction.Signature,
			Slot:      u.Transaction.Slot,
			Filters:   update.Filters,
		}
	case *pb.SubscribeUpdate_Ping:
		return PingEvent{}
	case *pb.SubscribeUpdate_Pong:
		var id int32
		if u.Pong != nil {
			id = u.Pong.Id
		}
		return PongEvent{ID: id}
	case *pb.SubscribeUpdate_Account:
		return OtherEvent{Kind: "account"}
	case *pb.SubscribeUpdate_Slot:
		return OtherEvent{Kind: "slot"}
	case *pb.SubscribeUpdate_TransactionStatus:
		return OtherEvent{Kind: "transaction_status"}
	case *pb.SubscribeUpdate_Block:
		return OtherEvent{Kind: "block"}
	case *pb.SubscribeUpdate_BlockMeta:
		return OtherEvent{Kind: "block_meta"}
	case *pb.SubscribeUpdate_Entry:
		return OtherEvent{Kind: "entry"}
	default:
		return OtherEvent{Kind: "unknown"}
	}
}
