package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	core "github.com/libp2p/go-libp2p-core/peer"
	"github.com/subastra/auctiond/lib/auction"
	rpc "github.com/textileio/go-libp2p-pubsub-rpc"
	"github.com/textileio/go-libp2p-pubsub-rpc/finalizer"
	"github.com/textileio/go-libp2p-pubsub-rpc/peer"
	golog "github.com/textileio/go-log/v2"
	"golang.org/x/sync/semaphore"
)

var log = golog.Logger("auctiond/eventbus")

// maxInflightPublishes bounds concurrent topic publishes. Events beyond the
// bound are dropped rather than queued.
const maxInflightPublishes = 16

// Event is an informational auction lifecycle announcement. Consumers must
// treat it as advisory; authoritative state lives in the auction store only.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	AuctionID auction.ID        `json:"auction_id"`
	Account   auction.AccountID `json:"account,omitempty"`
	Amount    uint64            `json:"amount,omitempty"`
	Block     uint64            `json:"block,omitempty"`
	Ts        time.Time         `json:"ts"`
}

// Event types.
const (
	TypeAuctionCreated   = "auction_created"
	TypeBidPlaced        = "bid_placed"
	TypeAuctionClosed    = "auction_closed"
	TypeAuctionDestroyed = "auction_destroyed"
	TypeReservedClaimed  = "reserved_claimed"
)

// Bus announces auction events over libp2p pubsub. It satisfies
// engine.EventReporter.
type Bus struct {
	peer      *peer.Peer
	topic     *rpc.Topic
	ctx       context.Context
	finalizer *finalizer.Finalizer

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New returns a Bus publishing to the global events topic.
func New(ctx context.Context, conf peer.Config) (*Bus, error) {
	fin := finalizer.NewFinalizer()
	p, err := peer.New(conf)
	if err != nil {
		return nil, fin.Cleanupf("creating peer: %v", err)
	}
	fin.Add(p)

	topic, err := p.NewTopic(ctx, auction.EventsTopic, false)
	if err != nil {
		return nil, fin.Cleanupf("creating events topic: %v", err)
	}
	fin.Add(topic)

	return &Bus{
		peer:      p,
		topic:     topic,
		ctx:       ctx,
		finalizer: fin,
		sem:       semaphore.NewWeighted(maxInflightPublishes),
	}, nil
}

// ID returns the host peer id.
func (b *Bus) ID() core.ID {
	return b.peer.Host().ID()
}

// Info returns the host peer info.
func (b *Bus) Info() (*peer.Info, error) {
	return b.peer.Info()
}

// Bootstrap the underlying peer against its configured addresses.
func (b *Bus) Bootstrap() {
	b.peer.Bootstrap()
}

// Close the bus, waiting for in-flight publishes to finish.
func (b *Bus) Close() error {
	b.wg.Wait()
	log.Info("eventbus was shutdown")
	return b.finalizer.Cleanup(nil)
}

// publish announces the event without blocking the operation that produced
// it. Publishing is best effort: saturation drops the event.
func (b *Bus) publish(e Event) {
	e.ID = uuid.NewString()
	e.Ts = time.Now()
	msg, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshaling event: %v", err)
		return
	}
	if !b.sem.TryAcquire(1) {
		log.Warnf("dropping %s event; too many in-flight publishes", e.Type)
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.sem.Release(1)
		ctx, cancel := context.WithTimeout(b.ctx, time.Second*5)
		defer cancel()
		if _, err := b.topic.Publish(ctx, msg, rpc.WithIgnoreResponse(true)); err != nil {
			log.Errorf("publishing %s event: %v", e.Type, err)
		}
	}()
}

// AuctionCreated announces a created auction.
func (b *Bus) AuctionCreated(id auction.ID, owner auction.AccountID) {
	b.publish(Event{Type: TypeAuctionCreated, AuctionID: id, Account: owner})
}

// BidPlaced announces an accepted bid.
func (b *Bus) BidPlaced(id auction.ID, bid auction.Bid) {
	b.publish(Event{Type: TypeBidPlaced, AuctionID: id, Account: bid.Bidder, Amount: bid.Amount, Block: bid.Block})
}

// AuctionClosed announces a settled auction.
func (b *Bus) AuctionClosed(id auction.ID) {
	b.publish(Event{Type: TypeAuctionClosed, AuctionID: id})
}

// AuctionDestroyed announces a destroyed auction.
func (b *Bus) AuctionDestroyed(id auction.ID) {
	b.publish(Event{Type: TypeAuctionDestroyed, AuctionID: id})
}

// ReservedClaimed announces a successful escrow refund claim.
func (b *Bus) ReservedClaimed(id auction.ID, bidder auction.AccountID, amount uint64) {
	b.publish(Event{Type: TypeReservedClaimed, AuctionID: id, Account: bidder, Amount: amount})
}
