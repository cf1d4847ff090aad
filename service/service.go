package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/lib/chainclock"
	"github.com/subastra/auctiond/lib/dshelper/txndswrap"
	"github.com/subastra/auctiond/service/engine"
	"github.com/subastra/auctiond/service/eventbus"
	"github.com/subastra/auctiond/service/ledger"
	"github.com/subastra/auctiond/service/limiter"
	"github.com/subastra/auctiond/service/randomness"
	"github.com/subastra/auctiond/service/registry"
	"github.com/subastra/auctiond/service/store"
	golog "github.com/textileio/go-log/v2"
	"github.com/textileio/go-libp2p-pubsub-rpc/peer"

	ds "github.com/ipfs/go-datastore"
)

var (
	log = golog.Logger("auctiond/service")

	errBidVolumeLimited = errors.New(auction.ErrStringBidVolumeLimited)

	// dsGenesisKey marks that genesis balances and assets were applied.
	dsGenesisKey = ds.NewKey("/genesis_applied")
)

// AssetSeed mints an asset at genesis.
type AssetSeed struct {
	Owner auction.AccountID
	Asset auction.AssetRef
}

// Config defines params for Service configuration.
type Config struct {
	// Params are the engine-wide auction parameters.
	Params auction.Params

	// GenesisTime anchors block zero of the ambient chain clock.
	GenesisTime time.Time
	// BlockInterval is the wall duration of one block.
	BlockInterval time.Duration

	// BidVolumeLimit caps the total bid amount admitted per BidVolumePeriod.
	// Zero disables limiting.
	BidVolumeLimit  uint64
	BidVolumePeriod time.Duration

	// GenesisBalances funds accounts on first start.
	GenesisBalances map[auction.AccountID]uint64
	// GenesisAssets mints assets on first start.
	GenesisAssets []AssetSeed
}

// Validate ensures the Config is usable.
func (c *Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("invalid auction params: %v", err)
	}
	if c.BlockInterval <= 0 {
		return fmt.Errorf("invalid block interval; must be positive")
	}
	if c.GenesisTime.IsZero() {
		return fmt.Errorf("genesis time must be set")
	}
	if c.BidVolumeLimit > 0 && c.BidVolumePeriod <= 0 {
		return fmt.Errorf("bid volume period must be positive when a limit is set")
	}
	return nil
}

// Service wires the auction engine to its collaborators and fronts it for
// the HTTP API. It owns no business logic.
type Service struct {
	engine  *engine.Engine
	ledger  *ledger.Store
	assets  *registry.Store
	clock   chainclock.Clock
	limiter limiter.Limiter
	bus     *eventbus.Bus
	metrics metrics
}

// New returns a new Service backed by the given datastore. The bus is
// optional; pass nil to disable event announcements.
func New(conf Config, dstore txndswrap.TxnDatastore, bus *eventbus.Bus) (*Service, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %v", err)
	}

	clock, err := chainclock.NewWall(conf.GenesisTime, conf.BlockInterval)
	if err != nil {
		return nil, fmt.Errorf("creating chain clock: %v", err)
	}

	ledgerStore := ledger.NewStore(dstore)
	assetStore := registry.NewStore(dstore)
	auctionStore := store.NewStore(dstore)

	var reporter engine.EventReporter
	if bus != nil {
		reporter = bus
	}
	eng, err := engine.New(
		auctionStore, ledgerStore, assetStore, randomness.System{}, clock, conf.Params, reporter)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %v", err)
	}

	var lim limiter.Limiter = limiter.NopeLimiter{}
	if conf.BidVolumeLimit > 0 {
		lim = limiter.NewRunningTotalLimiter(conf.BidVolumePeriod, conf.BidVolumeLimit)
	}

	s := &Service{
		engine:  eng,
		ledger:  ledgerStore,
		assets:  assetStore,
		clock:   clock,
		limiter: lim,
		bus:     bus,
	}
	s.initMetrics()

	if err := s.applyGenesis(conf, dstore); err != nil {
		return nil, fmt.Errorf("applying genesis state: %v", err)
	}

	log.Infof("service started at block %d", clock.Height())
	return s, nil
}

// applyGenesis funds configured accounts and mints configured assets, once.
func (s *Service) applyGenesis(conf Config, dstore txndswrap.TxnDatastore) error {
	switch _, err := dstore.Get(dsGenesisKey); {
	case err == nil:
		return nil
	case !errors.Is(err, ds.ErrNotFound):
		return fmt.Errorf("checking genesis marker: %v", err)
	}
	for account, amount := range conf.GenesisBalances {
		if err := s.ledger.Deposit(account, amount); err != nil {
			return fmt.Errorf("funding %s: %v", account, err)
		}
	}
	for _, seed := range conf.GenesisAssets {
		if err := s.assets.Mint(seed.Owner, seed.Asset); err != nil {
			return fmt.Errorf("minting %s: %v", seed.Asset, err)
		}
	}
	if err := dstore.Put(dsGenesisKey, []byte{1}); err != nil {
		return fmt.Errorf("writing genesis marker: %v", err)
	}
	log.Infof("applied genesis state: %d balances, %d assets",
		len(conf.GenesisBalances), len(conf.GenesisAssets))
	return nil
}

// CreateAuction creates an auction on behalf of caller.
func (s *Service) CreateAuction(caller auction.AccountID, a *auction.Auction) (auction.ID, error) {
	id, err := s.engine.Create(caller, a)
	if err != nil {
		return 0, err
	}
	s.metrics.auctionsCreated.Add(metricsCtx, 1)
	return id, nil
}

// UpdateAuction replaces an auction record before start.
func (s *Service) UpdateAuction(caller auction.AccountID, id auction.ID, a *auction.Auction) error {
	return s.engine.Update(caller, id, a)
}

// DestroyAuction removes an auction before start.
func (s *Service) DestroyAuction(caller auction.AccountID, id auction.ID) error {
	return s.engine.Destroy(caller, id)
}

// Bid places a bid, admitted through the running bid volume limiter.
func (s *Service) Bid(caller auction.AccountID, id auction.ID, amount uint64) error {
	if !s.limiter.Request(amount) {
		return errBidVolumeLimited
	}
	if err := s.engine.Bid(caller, id, amount); err != nil {
		s.limiter.Withdraw(amount)
		return err
	}
	s.limiter.Commit(amount)
	s.metrics.bidsPlaced.Add(metricsCtx, 1)
	return nil
}

// CloseAuction settles an ended auction. Permissionless.
func (s *Service) CloseAuction(id auction.ID) error {
	if err := s.engine.Close(id); err != nil {
		return err
	}
	s.metrics.auctionsClosed.Add(metricsCtx, 1)
	return nil
}

// ClaimReserved refunds a bidder's escrow contribution for a closed,
// not-won top-up auction.
func (s *Service) ClaimReserved(bidder auction.AccountID, id auction.ID) error {
	if err := s.engine.ClaimReserved(bidder, id); err != nil {
		return err
	}
	s.metrics.reservedClaimed.Add(metricsCtx, 1)
	return nil
}

// GetAuction returns an auction by id.
func (s *Service) GetAuction(id auction.ID) (*auction.Auction, error) {
	return s.engine.GetAuction(id)
}

// ListAuctions lists auctions by applying a store query.
func (s *Service) ListAuctions(query store.Query) ([]store.Record, error) {
	return s.engine.ListAuctions(query)
}

// ListAuctionsByOwner lists every auction owned by owner.
func (s *Service) ListAuctionsByOwner(owner auction.AccountID) ([]store.Record, error) {
	return s.engine.ListAuctionsByOwner(owner)
}

// ReservedAmount returns a bidder's cumulative escrow contribution.
func (s *Service) ReservedAmount(bidder auction.AccountID, id auction.ID) (uint64, error) {
	return s.engine.ReservedAmount(bidder, id)
}

// Balance returns an account's full ledger balance.
func (s *Service) Balance(account auction.AccountID) (uint64, error) {
	return s.ledger.Balance(account)
}

// FreeBalance returns an account's spendable ledger balance.
func (s *Service) FreeBalance(account auction.AccountID) (uint64, error) {
	return s.ledger.FreeBalance(account)
}

// OwnerOf returns the owner of an asset.
func (s *Service) OwnerOf(ref auction.AssetRef) (auction.AccountID, error) {
	return s.assets.OwnerOf(ref)
}

// Height returns the current block height.
func (s *Service) Height() uint64 {
	return s.clock.Height()
}

// PeerInfo returns the event bus peer's public information, or an error
// when the service runs without a bus.
func (s *Service) PeerInfo() (*peer.Info, error) {
	if s.bus == nil {
		return nil, fmt.Errorf("event bus is disabled")
	}
	return s.bus.Info()
}

// Close the service.
func (s *Service) Close() error {
	log.Info("service was shutdown")
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}
