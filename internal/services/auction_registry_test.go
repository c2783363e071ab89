package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nft-marketplace/internal/domain"
	"nft-marketplace/internal/infrastructure/memory"
	"nft-marketplace/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	registryAddr = domain.Address("marketplace")
	owner        = domain.Address("owner")
	user1        = domain.Address("user1")
	user2        = domain.Address("user2")

	nftRef   = domain.ContractRef("nft-collection")
	tokenRef = domain.ContractRef("payment-token")

	tokenSupply  = domain.Amount(1_000_000)
	initialPrice = domain.Amount(50)
	auctionSpan  = 10000 * time.Second
)

var (
	errLedgerDown     = errors.New("ledger unavailable")
	errCollectionDown = errors.New("collection unavailable")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.AuctionEvent
	err    error
}

func (p *recordingPublisher) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.AuctionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []domain.AuctionEventType
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

// flakyLedger fails payouts to one address.
type flakyLedger struct {
	*memory.TokenLedger
	failTransferTo domain.Address
}

func (l *flakyLedger) Transfer(ctx context.Context, caller, to domain.Address, amount domain.Amount) error {
	if to == l.failTransferTo {
		return errLedgerDown
	}
	return l.TokenLedger.Transfer(ctx, caller, to, amount)
}

// flakyCollection fails the next n transfers out of escrow.
type flakyCollection struct {
	*memory.AssetCollection
	failures int
}

func (c *flakyCollection) TransferFrom(ctx context.Context, caller, from, to domain.Address, id domain.AssetID) error {
	if from == registryAddr && c.failures > 0 {
		c.failures--
		return errCollectionDown
	}
	return c.AssetCollection.TransferFrom(ctx, caller, from, to, id)
}

type fixtureOptions struct {
	refundRequiresExpiry bool
	wrapCollection       func(*memory.AssetCollection) domain.AssetCollection
	wrapLedger           func(*memory.TokenLedger) domain.TokenLedger
}

type fixture struct {
	registry   *AuctionRegistry
	directory  *ContractDirectory
	collection *memory.AssetCollection
	ledger     *memory.TokenLedger
	repo       *memory.AuctionRepository
	publisher  *recordingPublisher
	clock      *fakeClock
	cfg        RegistryConfig
}

func newFixture(t *testing.T) *fixture {
	return newCustomFixture(t, fixtureOptions{refundRequiresExpiry: true})
}

func newCustomFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	collection := memory.NewAssetCollection("Test NFT")
	ledger := memory.NewTokenLedger("Test Token", "XTS")
	require.NoError(t, ledger.Mint(context.Background(), owner, tokenSupply))

	directory := NewContractDirectory(registryAddr)
	var assets domain.AssetCollection = collection
	if opts.wrapCollection != nil {
		assets = opts.wrapCollection(collection)
	}
	var tokens domain.TokenLedger = ledger
	if opts.wrapLedger != nil {
		tokens = opts.wrapLedger(ledger)
	}
	directory.RegisterAssetCollection(nftRef, assets)
	directory.RegisterTokenLedger(tokenRef, tokens)

	cfg := RegistryConfig{
		Name:                 "My NFT Marketplace",
		Address:              registryAddr,
		MinDuration:          time.Minute,
		RefundRequiresExpiry: opts.refundRequiresExpiry,
	}
	repo := memory.NewAuctionRepository()
	publisher := &recordingPublisher{}
	clock := newFakeClock()

	return &fixture{
		registry:   NewAuctionRegistry(cfg, directory, repo, publisher, clock, logger.NewNop()),
		directory:  directory,
		collection: collection,
		ledger:     ledger,
		repo:       repo,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
	}
}

func (f *fixture) mintAsset(t *testing.T, to domain.Address) domain.AssetID {
	t.Helper()
	id, err := f.collection.Mint(context.Background(), to, "test.uri.domain.io")
	require.NoError(t, err)
	return id
}

func (f *fixture) fund(t *testing.T, holder domain.Address, amount domain.Amount) {
	t.Helper()
	require.NoError(t, f.ledger.Transfer(context.Background(), owner, holder, amount))
}

func (f *fixture) approveTokens(t *testing.T, holder domain.Address, amount domain.Amount) {
	t.Helper()
	require.NoError(t, f.ledger.Approve(context.Background(), holder, registryAddr, amount))
}

func (f *fixture) balance(t *testing.T, holder domain.Address) domain.Amount {
	t.Helper()
	b, err := f.ledger.BalanceOf(context.Background(), holder)
	require.NoError(t, err)
	return b
}

func (f *fixture) assetOwner(t *testing.T, id domain.AssetID) domain.Address {
	t.Helper()
	o, err := f.collection.OwnerOf(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) endTime() time.Time {
	return f.clock.Now().Add(auctionSpan)
}

// createAuction mints an asset to creator and lists it at initialPrice.
func (f *fixture) createAuction(t *testing.T, creator domain.Address) (uint64, domain.AssetID) {
	t.Helper()
	id := f.mintAsset(t, creator)
	require.NoError(t, f.collection.Approve(context.Background(), creator, registryAddr, id))

	index, err := f.registry.CreateAuction(context.Background(), creator, nftRef, tokenRef, id, initialPrice, f.endTime())
	require.NoError(t, err)
	return index, id
}

// placeBid grants allowance, funds the bidder and bids.
func (f *fixture) placeBid(t *testing.T, bidder domain.Address, index uint64, allowance, funding, amount domain.Amount) {
	t.Helper()
	f.approveTokens(t, bidder, allowance)
	f.fund(t, bidder, funding)
	require.NoError(t, f.registry.Bid(context.Background(), bidder, index, amount))
}

// claimSetUp mirrors the settlement scenarios: user1 lists, user2 optionally bids 500.
func (f *fixture) claimSetUp(t *testing.T, withBid bool) (uint64, domain.AssetID) {
	t.Helper()
	index, id := f.createAuction(t, user1)
	if withBid {
		f.placeBid(t, user2, index, 10000, 20000, 500)
	}
	return index, id
}

// escrowed is what the registry must hold across all auctions.
func (f *fixture) escrowed(t *testing.T) domain.Amount {
	t.Helper()
	var total domain.Amount
	for i := uint64(0); i < f.registry.AuctionCount(); i++ {
		a, err := f.registry.Auction(i)
		require.NoError(t, err)
		if a.BidCount > 0 && !a.FundsReleased {
			total += a.CurrentBidAmount
		}
	}
	return total
}

func TestNewRegistry(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "My NFT Marketplace", f.registry.Name())
	assert.Equal(t, registryAddr, f.registry.Address())
	assert.Equal(t, uint64(0), f.registry.AuctionCount())
}

func TestCreateAuction_Failures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		caller    domain.Address
		asset     domain.ContractRef
		payment   domain.ContractRef
		price     domain.Amount
		endTime   func(now time.Time) time.Time
		approve   bool
		wantErr   error
		wantClass error
	}{
		{
			name: "empty asset contract", caller: owner, asset: "", payment: tokenRef, price: 50,
			endTime: func(now time.Time) time.Time { return now.Add(auctionSpan) }, approve: true,
			wantErr: domain.ErrInvalidAssetContract, wantClass: domain.ErrValidation,
		},
		{
			name: "unknown asset contract", caller: owner, asset: domain.ContractRef(user1), payment: tokenRef, price: 50,
			endTime: func(now time.Time) time.Time { return now.Add(auctionSpan) }, approve: true,
			wantErr: domain.ErrInvalidAssetContract, wantClass: domain.ErrValidation,
		},
		{
			name: "asset contract checked before payment contract", caller: owner, asset: "", payment: "",
			endTime: func(now time.Time) time.Time { return now.Add(auctionSpan) }, approve: true, price: 50,
			wantErr: domain.ErrInvalidAssetContract, wantClass: domain.ErrValidation,
		},
		{
			name: "unknown payment contract", caller: owner, asset: nftRef, payment: domain.ContractRef(user1), price: 50,
			endTime: func(now time.Time) time.Time { return now.Add(auctionSpan) }, approve: true,
			wantErr: domain.ErrInvalidPaymentContract, wantClass: domain.ErrValidation,
		},
		{
			name: "end time in the past", caller: owner, asset: nftRef, payment: tokenRef, price: 50,
			endTime: func(time.Time) time.Time { return time.Unix(1111111111, 0) }, approve: true,
			wantErr: domain.ErrInvalidEndTime, wantClass: domain.ErrValidation,
		},
		{
			name: "end time inside minimum window", caller: owner, asset: nftRef, payment: tokenRef, price: 50,
			endTime: func(now time.Time) time.Time { return now.Add(30 * time.Second) }, approve: true,
			wantErr: domain.ErrInvalidEndTime, wantClass: domain.ErrValidation,
		},
		{
			name: "zero initial price", caller: owner, asset: nftRef, payment: tokenRef, price: 0,
			endTime: func(now time.Time) time.Time { return now.Add(auctionSpan) }, approve: true,
			wantErr: domain.ErrInvalidInitialPrice, wantClass: domain.ErrValidation,
		},
		{
			name: "caller does not own the asset", caller: user1, asset: nftRef, payment: tokenRef, price: 50,
			endTime: func(now time.Time) time.Time { return now.Add(auctionSpan) }, approve: true,
			wantErr: domain.ErrNotAssetOwner, wantClass: domain.ErrAuthorization,
		},
		{
			name: "transfer not approved", caller: owner, asset: nftRef, payment: tokenRef, price: 50,
			endTime: func(now time.Time) time.Time { return now.Add(auctionSpan) }, approve: false,
			wantErr: domain.ErrTransferNotApproved, wantClass: domain.ErrAuthorization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.mintAsset(t, owner)
			if tt.approve {
				require.NoError(t, f.collection.Approve(ctx, owner, registryAddr, id))
			}

			_, err := f.registry.CreateAuction(ctx, tt.caller, tt.asset, tt.payment, id, tt.price, tt.endTime(f.clock.Now()))

			require.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, tt.wantClass)
			assert.Equal(t, uint64(0), f.registry.AuctionCount())
			assert.Equal(t, owner, f.assetOwner(t, id))
			assert.Empty(t, f.publisher.types())
		})
	}
}

func TestCreateAuction_ApprovalForAnotherAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintAsset(t, owner)
	require.NoError(t, f.collection.Approve(ctx, owner, user2, id))

	_, err := f.registry.CreateAuction(ctx, owner, nftRef, tokenRef, id, initialPrice, f.endTime())

	require.ErrorIs(t, err, domain.ErrTransferNotApproved)
}

func TestCreateAuction_UnknownAsset(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.CreateAuction(context.Background(), owner, nftRef, tokenRef, 42, initialPrice, f.endTime())

	require.ErrorIs(t, err, domain.ErrUnknownAsset)
	assert.ErrorIs(t, err, domain.ErrCollaborator)
}

func TestCreateAuction_EndTimeAtMinimumWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mintAsset(t, owner)
	require.NoError(t, f.collection.Approve(ctx, owner, registryAddr, id))

	_, err := f.registry.CreateAuction(ctx, owner, nftRef, tokenRef, id, initialPrice, f.clock.Now().Add(f.cfg.MinDuration))

	require.NoError(t, err)
}

// Scenario A
func TestCreateAuction_Success(t *testing.T) {
	f := newFixture(t)

	index, id := f.createAuction(t, owner)

	assert.Equal(t, uint64(0), index)
	assert.Equal(t, uint64(1), f.registry.AuctionCount())

	currentBid, err := f.registry.CurrentBid(index)
	require.NoError(t, err)
	assert.Equal(t, initialPrice, currentBid)

	_, hasOwner, err := f.registry.CurrentBidOwner(index)
	require.NoError(t, err)
	assert.False(t, hasOwner)

	assert.Equal(t, registryAddr, f.assetOwner(t, id))

	a, err := f.registry.Auction(index)
	require.NoError(t, err)
	assert.Equal(t, owner, a.Creator)
	assert.Equal(t, nftRef, a.AssetContract)
	assert.Equal(t, tokenRef, a.PaymentContract)
	assert.Equal(t, id, a.AssetID)
	assert.Equal(t, uint64(0), a.BidCount)
	assert.Nil(t, a.CurrentBidOwner)
	assert.Equal(t, domain.AuctionOpen, a.Status)
	assert.False(t, a.Settled())

	approved, err := f.collection.GetApproved(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, approved)

	assert.Equal(t, []domain.AuctionEventType{domain.EventAuctionCreated}, f.publisher.types())

	saved, err := f.repo.ListAuctions(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, owner, saved[0].Creator)
}

func TestCreateAuction_SequenceNumbers(t *testing.T) {
	f := newFixture(t)

	first, _ := f.createAuction(t, owner)
	second, _ := f.createAuction(t, user1)
	third, _ := f.createAuction(t, owner)

	assert.Equal(t, []uint64{0, 1, 2}, []uint64{first, second, third})
	assert.Equal(t, uint64(3), f.registry.AuctionCount())
}

func TestCreateAuction_AssetAlreadyListed(t *testing.T) {
	f := newFixture(t)
	_, id := f.createAuction(t, owner)

	_, err := f.registry.CreateAuction(context.Background(), owner, nftRef, tokenRef, id, initialPrice, f.endTime())

	require.ErrorIs(t, err, domain.ErrNotAssetOwner)
	assert.Equal(t, uint64(1), f.registry.AuctionCount())
}

func TestBid_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid auction index", func(t *testing.T) {
		f := newFixture(t)
		f.createAuction(t, owner)

		err := f.registry.Bid(ctx, user1, 4545, 100)
		require.ErrorIs(t, err, domain.ErrAuctionNotFound)
		assert.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("bid below current bid", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.createAuction(t, owner)

		require.ErrorIs(t, f.registry.Bid(ctx, user1, index, 25), domain.ErrBidTooLow)
	})

	t.Run("bid equal to current bid", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.createAuction(t, owner)

		require.ErrorIs(t, f.registry.Bid(ctx, user1, index, initialPrice), domain.ErrBidTooLow)
	})

	t.Run("creator cannot bid", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.createAuction(t, owner)

		err := f.registry.Bid(ctx, owner, index, 60)
		require.ErrorIs(t, err, domain.ErrCreatorCannotBid)
		assert.ErrorIs(t, err, domain.ErrAuthorization)
	})

	t.Run("registry has no allowance", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.createAuction(t, owner)

		err := f.registry.Bid(ctx, user1, index, 60)
		require.ErrorIs(t, err, domain.ErrInsufficientAllowance)
		assert.ErrorIs(t, err, domain.ErrCollaborator)
	})

	t.Run("bidder has no balance", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.createAuction(t, owner)
		f.approveTokens(t, user1, 10000)

		err := f.registry.Bid(ctx, user1, index, 60)
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)

		currentBid, err := f.registry.CurrentBid(index)
		require.NoError(t, err)
		assert.Equal(t, initialPrice, currentBid)
		_, hasOwner, err := f.registry.CurrentBidOwner(index)
		require.NoError(t, err)
		assert.False(t, hasOwner)
		assert.Equal(t, domain.Amount(0), f.balance(t, registryAddr))
	})

	t.Run("bid at end time", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.createAuction(t, owner)
		f.approveTokens(t, user1, 10000)
		f.fund(t, user1, 10000)
		f.clock.Advance(auctionSpan)

		require.ErrorIs(t, f.registry.Bid(ctx, user1, index, 500), domain.ErrAuctionEnded)
		assert.Equal(t, domain.Amount(10000), f.balance(t, user1))
	})

	t.Run("bid after end time", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.createAuction(t, owner)
		f.approveTokens(t, user1, 10000)
		f.fund(t, user1, 10000)
		f.clock.Advance(auctionSpan + time.Hour)

		require.ErrorIs(t, f.registry.Bid(ctx, user1, index, 500), domain.ErrAuctionEnded)
	})
}

// Scenario B
func TestBid_FirstBid(t *testing.T) {
	f := newFixture(t)
	index, _ := f.createAuction(t, owner)

	f.placeBid(t, user1, index, 10000, 10000, 500)

	assert.Equal(t, domain.Amount(9500), f.balance(t, user1))
	assert.Equal(t, domain.Amount(500), f.balance(t, registryAddr))

	bidOwner, ok, err := f.registry.CurrentBidOwner(index)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, user1, bidOwner)

	currentBid, err := f.registry.CurrentBid(index)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(500), currentBid)

	allowance, err := f.ledger.Allowance(context.Background(), user1, registryAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(9500), allowance)

	assert.Equal(t, []domain.AuctionEventType{domain.EventAuctionCreated, domain.EventBidAccepted}, f.publisher.types())
}

// Scenario C
func TestBid_OutbidRefundsPreviousBidder(t *testing.T) {
	f := newFixture(t)
	index, _ := f.createAuction(t, owner)
	f.placeBid(t, user1, index, 10000, 10000, 500)

	f.placeBid(t, user2, index, 20000, 20000, 1000)

	assert.Equal(t, domain.Amount(10000), f.balance(t, user1))
	assert.Equal(t, domain.Amount(19000), f.balance(t, user2))
	assert.Equal(t, domain.Amount(1000), f.balance(t, registryAddr))

	bidOwner, ok, err := f.registry.CurrentBidOwner(index)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, user2, bidOwner)

	currentBid, err := f.registry.CurrentBid(index)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(1000), currentBid)

	f.publisher.mu.Lock()
	refund := f.publisher.events[len(f.publisher.events)-1]
	f.publisher.mu.Unlock()
	assert.Equal(t, domain.EventBidRefunded, refund.Type)
	assert.Equal(t, user1, refund.Actor)
	assert.Equal(t, user2, refund.Counterparty)
	assert.Equal(t, domain.Amount(500), refund.Amount)
}

func TestBid_OutbidRestoresPreBidBalance(t *testing.T) {
	for _, first := range []domain.Amount{51, 500, 9999} {
		t.Run(fmt.Sprintf("first bid %d", first), func(t *testing.T) {
			f := newFixture(t)
			index, _ := f.createAuction(t, owner)
			f.approveTokens(t, user1, 10000)
			f.fund(t, user1, 10000)
			before := f.balance(t, user1)

			require.NoError(t, f.registry.Bid(context.Background(), user1, index, first))
			f.placeBid(t, user2, index, 20000, 20000, first+1)

			assert.Equal(t, before, f.balance(t, user1))
			assert.Equal(t, first+1, f.balance(t, registryAddr))
		})
	}
}

func TestBid_MonotonicSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	index, _ := f.createAuction(t, owner)

	bidders := []domain.Address{user1, user2, "user3"}
	for _, b := range bidders {
		f.approveTokens(t, b, 100000)
		f.fund(t, b, 100000)
	}

	amounts := []domain.Amount{60, 75, 120, 121, 500, 900}
	for k, amount := range amounts {
		bidder := bidders[k%len(bidders)]
		require.NoError(t, f.registry.Bid(ctx, bidder, index, amount))

		currentBid, err := f.registry.CurrentBid(index)
		require.NoError(t, err)
		assert.Equal(t, amount, currentBid)

		bidOwner, ok, err := f.registry.CurrentBidOwner(index)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, bidder, bidOwner)

		// escrow conservation
		assert.Equal(t, f.escrowed(t), f.balance(t, registryAddr))
	}

	a, err := f.registry.Auction(index)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(amounts)), a.BidCount)

	// Only the final bidder is short.
	assert.Equal(t, domain.Amount(100000), f.balance(t, user1))
	assert.Equal(t, domain.Amount(100000-900), f.balance(t, user2))
	assert.Equal(t, domain.Amount(100000), f.balance(t, "user3"))
}

func TestBid_RaiseOwnBid(t *testing.T) {
	f := newFixture(t)
	index, _ := f.createAuction(t, owner)
	f.placeBid(t, user1, index, 10000, 10000, 500)

	require.NoError(t, f.registry.Bid(context.Background(), user1, index, 700))

	assert.Equal(t, domain.Amount(9300), f.balance(t, user1))
	assert.Equal(t, domain.Amount(700), f.balance(t, registryAddr))
}

func TestBid_RefundFailureRollsBack(t *testing.T) {
	var flaky *flakyLedger
	f := newCustomFixture(t, fixtureOptions{
		refundRequiresExpiry: true,
		wrapLedger: func(l *memory.TokenLedger) domain.TokenLedger {
			flaky = &flakyLedger{TokenLedger: l}
			return flaky
		},
	})
	index, _ := f.createAuction(t, owner)
	f.placeBid(t, user1, index, 10000, 10000, 500)
	f.approveTokens(t, user2, 20000)
	f.fund(t, user2, 20000)
	flaky.failTransferTo = user1

	err := f.registry.Bid(context.Background(), user2, index, 1000)

	require.ErrorIs(t, err, errLedgerDown)
	assert.Equal(t, domain.Amount(20000), f.balance(t, user2))
	assert.Equal(t, domain.Amount(9500), f.balance(t, user1))
	assert.Equal(t, domain.Amount(500), f.balance(t, registryAddr))

	a, err := f.registry.Auction(index)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.BidCount)
	assert.Equal(t, user1, *a.CurrentBidOwner)
	assert.Equal(t, domain.Amount(500), a.CurrentBidAmount)
}

func TestBid_ConcurrentBidders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	index, _ := f.createAuction(t, owner)

	const bidders = 20
	addrs := make([]domain.Address, bidders)
	for i := range addrs {
		addrs[i] = domain.Address(fmt.Sprintf("bidder-%d", i))
		f.approveTokens(t, addrs[i], 10000)
		f.fund(t, addrs[i], 10000)
	}

	var wg sync.WaitGroup
	for i, addr := range addrs {
		wg.Add(1)
		go func(amount domain.Amount, bidder domain.Address) {
			defer wg.Done()
			_ = f.registry.Bid(ctx, bidder, index, amount)
		}(domain.Amount(100+i*10), addr)
	}
	wg.Wait()

	bidOwner, ok, err := f.registry.CurrentBidOwner(index)
	require.NoError(t, err)
	require.True(t, ok)
	currentBid, err := f.registry.CurrentBid(index)
	require.NoError(t, err)

	assert.Equal(t, currentBid, f.balance(t, registryAddr))
	for _, addr := range addrs {
		want := domain.Amount(10000)
		if addr == bidOwner {
			want -= currentBid
		}
		assert.Equal(t, want, f.balance(t, addr), string(addr))
	}
}

func TestClaimAsset_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("auction still open", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.claimSetUp(t, true)

		require.ErrorIs(t, f.registry.ClaimAsset(ctx, user2, index), domain.ErrAuctionOpen)
	})

	t.Run("caller is not the current bid owner", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.claimSetUp(t, true)
		f.clock.Advance(auctionSpan + 100*time.Second)

		err := f.registry.ClaimAsset(ctx, user1, index)
		require.ErrorIs(t, err, domain.ErrNotWinner)
		assert.ErrorIs(t, err, domain.ErrAuthorization)
	})

	t.Run("no bid was placed", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.claimSetUp(t, false)
		f.clock.Advance(auctionSpan)

		require.ErrorIs(t, f.registry.ClaimAsset(ctx, user2, index), domain.ErrNotWinner)
		require.ErrorIs(t, f.registry.ClaimAsset(ctx, user1, index), domain.ErrNotWinner)
	})

	t.Run("unknown auction", func(t *testing.T) {
		f := newFixture(t)

		require.ErrorIs(t, f.registry.ClaimAsset(ctx, user2, 0), domain.ErrAuctionNotFound)
	})
}

// Scenario D
func TestClaimAsset_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	index, id := f.claimSetUp(t, true)
	f.clock.Advance(auctionSpan + 1000*time.Second)

	require.NoError(t, f.registry.ClaimAsset(ctx, user2, index))

	assert.Equal(t, user2, f.assetOwner(t, id))
	assert.Equal(t, domain.Amount(500), f.balance(t, user1))
	assert.Equal(t, domain.Amount(0), f.balance(t, registryAddr))

	a, err := f.registry.Auction(index)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionSettled, a.Status)
	assert.True(t, a.AssetReleased)
	assert.True(t, a.FundsReleased)

	err = f.registry.ClaimAsset(ctx, user2, index)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)
	require.ErrorIs(t, f.registry.ClaimFunds(ctx, user1, index), domain.ErrAlreadySettled)
	assert.Equal(t, domain.Amount(500), f.balance(t, user1))
}

func TestClaimAsset_AtEndTime(t *testing.T) {
	f := newFixture(t)
	index, id := f.claimSetUp(t, true)
	f.clock.Advance(auctionSpan)

	require.NoError(t, f.registry.ClaimAsset(context.Background(), user2, index))
	assert.Equal(t, user2, f.assetOwner(t, id))
}

func TestClaimFunds_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("auction still open", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.claimSetUp(t, true)

		require.ErrorIs(t, f.registry.ClaimFunds(ctx, user1, index), domain.ErrAuctionOpen)
	})

	t.Run("caller is not the creator", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.claimSetUp(t, true)
		f.clock.Advance(auctionSpan + 5000*time.Second)

		require.ErrorIs(t, f.registry.ClaimFunds(ctx, user2, index), domain.ErrNotCreator)
	})

	t.Run("no bids placed", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.claimSetUp(t, false)
		f.clock.Advance(auctionSpan)

		err := f.registry.ClaimFunds(ctx, user1, index)
		require.ErrorIs(t, err, domain.ErrNoBids)
		assert.ErrorIs(t, err, domain.ErrState)
	})
}

// Scenario E
func TestClaimFunds_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	index, id := f.claimSetUp(t, true)
	f.clock.Advance(auctionSpan + 5000*time.Second)
	before := f.balance(t, user1)

	require.NoError(t, f.registry.ClaimFunds(ctx, user1, index))

	assert.Equal(t, before+500, f.balance(t, user1))
	assert.Equal(t, domain.Amount(0), f.balance(t, registryAddr))
	assert.Equal(t, user2, f.assetOwner(t, id))

	require.ErrorIs(t, f.registry.ClaimFunds(ctx, user1, index), domain.ErrAlreadySettled)
	require.ErrorIs(t, f.registry.ClaimAsset(ctx, user2, index), domain.ErrAlreadySettled)
	assert.Equal(t, before+500, f.balance(t, user1))

	assert.Contains(t, f.publisher.types(), domain.EventAuctionSettled)
}

func TestClaim_RetryCompletesMissingLeg(t *testing.T) {
	var flaky *flakyCollection
	f := newCustomFixture(t, fixtureOptions{
		refundRequiresExpiry: true,
		wrapCollection: func(c *memory.AssetCollection) domain.AssetCollection {
			flaky = &flakyCollection{AssetCollection: c}
			return flaky
		},
	})
	ctx := context.Background()
	index, id := f.claimSetUp(t, true)
	f.clock.Advance(auctionSpan)
	flaky.failures = 1

	err := f.registry.ClaimAsset(ctx, user2, index)
	require.ErrorIs(t, err, errCollectionDown)

	a, err := f.registry.Auction(index)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionSettling, a.Status)
	assert.True(t, a.FundsReleased)
	assert.False(t, a.AssetReleased)
	assert.False(t, a.Settled())
	assert.Equal(t, domain.Amount(500), f.balance(t, user1))
	assert.Equal(t, registryAddr, f.assetOwner(t, id))

	require.NoError(t, f.registry.ClaimFunds(ctx, user1, index))

	assert.Equal(t, user2, f.assetOwner(t, id))
	assert.Equal(t, domain.Amount(500), f.balance(t, user1))
	a, err = f.registry.Auction(index)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionSettled, a.Status)
}

func TestRefund_Failures(t *testing.T) {
	ctx := context.Background()

	// Scenario F, failure half
	t.Run("existing bid", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.claimSetUp(t, true)
		f.clock.Advance(auctionSpan + 5000*time.Second)

		err := f.registry.Refund(ctx, user1, index)
		require.ErrorIs(t, err, domain.ErrExistingBid)
		assert.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("caller is not the creator", func(t *testing.T) {
		f := newFixture(t)
		index, _ := f.claimSetUp(t, false)
		f.clock.Advance(auctionSpan)

		require.ErrorIs(t, f.registry.Refund(ctx, user2, index), domain.ErrNotCreator)
	})

	t.Run("unknown auction", func(t *testing.T) {
		f := newFixture(t)

		require.ErrorIs(t, f.registry.Refund(ctx, user1, 7), domain.ErrAuctionNotFound)
	})

	t.Run("before end time when expiry is required", func(t *testing.T) {
		f := newFixture(t)
		index, id := f.claimSetUp(t, false)

		require.ErrorIs(t, f.registry.Refund(ctx, user1, index), domain.ErrAuctionOpen)
		assert.Equal(t, registryAddr, f.assetOwner(t, id))
	})
}

// Scenario F, success half
func TestRefund_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	index, id := f.claimSetUp(t, false)
	f.clock.Advance(auctionSpan + 5000*time.Second)

	require.NoError(t, f.registry.Refund(ctx, user1, index))

	assert.Equal(t, user1, f.assetOwner(t, id))
	a, err := f.registry.Auction(index)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionRefunded, a.Status)
	assert.True(t, a.Settled())

	require.ErrorIs(t, f.registry.Refund(ctx, user1, index), domain.ErrAlreadySettled)
	require.ErrorIs(t, f.registry.ClaimFunds(ctx, user1, index), domain.ErrNoBids)
	assert.Equal(t, user1, f.assetOwner(t, id))
}

func TestRefund_BeforeExpiryWhenAllowed(t *testing.T) {
	f := newCustomFixture(t, fixtureOptions{refundRequiresExpiry: false})
	ctx := context.Background()
	index, id := f.claimSetUp(t, false)

	require.NoError(t, f.registry.Refund(ctx, user1, index))
	assert.Equal(t, user1, f.assetOwner(t, id))

	f.approveTokens(t, user2, 10000)
	f.fund(t, user2, 10000)
	require.ErrorIs(t, f.registry.Bid(ctx, user2, index, 500), domain.ErrAlreadySettled)
	assert.Equal(t, domain.Amount(10000), f.balance(t, user2))
}

func TestSingleSettlement(t *testing.T) {
	ctx := context.Background()
	claims := map[string]func(f *fixture, index uint64) error{
		"claim asset": func(f *fixture, index uint64) error { return f.registry.ClaimAsset(ctx, user2, index) },
		"claim funds": func(f *fixture, index uint64) error { return f.registry.ClaimFunds(ctx, user1, index) },
		"refund":      func(f *fixture, index uint64) error { return f.registry.Refund(ctx, user1, index) },
	}

	for first, claim := range claims {
		t.Run(first, func(t *testing.T) {
			f := newFixture(t)
			index, id := f.claimSetUp(t, first != "refund")
			f.clock.Advance(auctionSpan)
			require.NoError(t, claim(f, index))
			holder := f.assetOwner(t, id)
			creatorBalance := f.balance(t, user1)

			for _, other := range claims {
				require.Error(t, other(f, index))
			}
			assert.Equal(t, holder, f.assetOwner(t, id))
			assert.Equal(t, creatorBalance, f.balance(t, user1))
		})
	}
}

func TestEscrowConservationAcrossAuctions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, _ := f.createAuction(t, owner)
	second, _ := f.createAuction(t, user1)
	f.createAuction(t, owner)

	f.placeBid(t, user2, first, 50000, 50000, 100)
	f.placeBid(t, "user3", second, 50000, 50000, 300)
	require.NoError(t, f.registry.Bid(ctx, user2, second, 400))
	assert.Equal(t, f.escrowed(t), f.balance(t, registryAddr))

	f.clock.Advance(auctionSpan)
	require.NoError(t, f.registry.ClaimFunds(ctx, owner, first))
	assert.Equal(t, f.escrowed(t), f.balance(t, registryAddr))
	assert.Equal(t, domain.Amount(400), f.balance(t, registryAddr))
}

func TestQueries_UnknownIndex(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.CurrentBid(0)
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
	_, _, err = f.registry.CurrentBidOwner(0)
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
	_, err = f.registry.Auction(0)
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestAuction_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	index, _ := f.claimSetUp(t, true)

	a, err := f.registry.Auction(index)
	require.NoError(t, err)
	*a.CurrentBidOwner = "mallory"
	a.CurrentBidAmount = 1

	bidOwner, _, err := f.registry.CurrentBidOwner(index)
	require.NoError(t, err)
	assert.Equal(t, user2, bidOwner)
}

func TestExpiredUnsettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sold, _ := f.claimSetUp(t, true)
	unsold, _ := f.claimSetUp(t, false)

	assert.Empty(t, f.registry.ExpiredUnsettled(f.clock.Now()))

	f.clock.Advance(auctionSpan)
	assert.Equal(t, []uint64{sold, unsold}, f.registry.ExpiredUnsettled(f.clock.Now()))

	require.NoError(t, f.registry.ClaimAsset(ctx, user2, sold))
	assert.Equal(t, []uint64{unsold}, f.registry.ExpiredUnsettled(f.clock.Now()))
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	index, id := f.claimSetUp(t, true)
	f.createAuction(t, owner)

	restored := NewAuctionRegistry(f.cfg, f.directory, f.repo, f.publisher, f.clock, logger.NewNop())
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, uint64(2), restored.AuctionCount())
	bidOwner, ok, err := restored.CurrentBidOwner(index)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, user2, bidOwner)

	f.clock.Advance(auctionSpan)
	require.NoError(t, restored.ClaimAsset(ctx, user2, index))
	assert.Equal(t, user2, f.assetOwner(t, id))
}

type gappyRepository struct{}

func (gappyRepository) SaveAuction(context.Context, *domain.Auction) error { return nil }
func (gappyRepository) ListAuctions(context.Context) ([]*domain.Auction, error) {
	return []*domain.Auction{{Index: 0}, {Index: 2}}, nil
}

func TestRestore_RejectsGaps(t *testing.T) {
	f := newFixture(t)
	registry := NewAuctionRegistry(f.cfg, f.directory, gappyRepository{}, nil, f.clock, logger.NewNop())

	require.Error(t, registry.Restore(context.Background()))
	assert.Equal(t, uint64(0), registry.AuctionCount())
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis down")

	index, _ := f.createAuction(t, owner)
	f.placeBid(t, user1, index, 10000, 10000, 500)

	currentBid, err := f.registry.CurrentBid(index)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(500), currentBid)
}
