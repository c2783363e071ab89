package services

import (
	"context"
	"sync"
	"time"

	"nft-marketplace/internal/domain"
)

// ContractDirectory resolves contract references to clients bound to the
// registry address.
type ContractDirectory struct {
	self     domain.Address
	assets   map[domain.ContractRef]domain.AssetCollection
	payments map[domain.ContractRef]domain.TokenLedger
	mutex    sync.RWMutex
}

func NewContractDirectory(self domain.Address) *ContractDirectory {
	return &ContractDirectory{
		self:     self,
		assets:   make(map[domain.ContractRef]domain.AssetCollection),
		payments: make(map[domain.ContractRef]domain.TokenLedger),
	}
}

// Address is the registry address the resolved clients act as.
func (d *ContractDirectory) Address() domain.Address {
	return d.self
}

func (d *ContractDirectory) RegisterAssetCollection(ref domain.ContractRef, collection domain.AssetCollection) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.assets[ref] = collection
}

func (d *ContractDirectory) RegisterTokenLedger(ref domain.ContractRef, ledger domain.TokenLedger) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.payments[ref] = ledger
}

// AssetCollection returns the raw collection, for the admin routes.
func (d *ContractDirectory) AssetCollection(ref domain.ContractRef) (domain.AssetCollection, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	c, ok := d.assets[ref]
	return c, ok
}

// TokenLedger returns the raw ledger, for the admin routes.
func (d *ContractDirectory) TokenLedger(ref domain.ContractRef) (domain.TokenLedger, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	l, ok := d.payments[ref]
	return l, ok
}

func (d *ContractDirectory) AssetCustody(ref domain.ContractRef) (domain.AssetCustodyClient, bool) {
	if ref == "" {
		return nil, false
	}
	c, ok := d.AssetCollection(ref)
	if !ok {
		return nil, false
	}
	return NewAssetCustodyClient(c, d.self), true
}

func (d *ContractDirectory) BalanceLedger(ref domain.ContractRef) (domain.BalanceLedgerClient, bool) {
	if ref == "" {
		return nil, false
	}
	l, ok := d.TokenLedger(ref)
	if !ok {
		return nil, false
	}
	return NewBalanceLedgerClient(l, d.self), true
}

type AssetCustodyClient struct {
	collection domain.AssetCollection
	self       domain.Address
}

func NewAssetCustodyClient(collection domain.AssetCollection, self domain.Address) *AssetCustodyClient {
	return &AssetCustodyClient{collection: collection, self: self}
}

func (c *AssetCustodyClient) OwnerOf(ctx context.Context, id domain.AssetID) (domain.Address, error) {
	return c.collection.OwnerOf(ctx, id)
}

// IsApprovedForTransfer is true iff by holds id and approved the registry for it.
func (c *AssetCustodyClient) IsApprovedForTransfer(ctx context.Context, id domain.AssetID, by domain.Address) (bool, error) {
	owner, err := c.collection.OwnerOf(ctx, id)
	if err != nil {
		return false, err
	}
	if owner != by {
		return false, nil
	}
	approved, err := c.collection.GetApproved(ctx, id)
	if err != nil {
		return false, err
	}
	return approved == c.self, nil
}

func (c *AssetCustodyClient) TransferCustody(ctx context.Context, id domain.AssetID, from, to domain.Address) error {
	return c.collection.TransferFrom(ctx, c.self, from, to, id)
}

type BalanceLedgerClient struct {
	ledger domain.TokenLedger
	self   domain.Address
}

func NewBalanceLedgerClient(ledger domain.TokenLedger, self domain.Address) *BalanceLedgerClient {
	return &BalanceLedgerClient{ledger: ledger, self: self}
}

func (c *BalanceLedgerClient) BalanceOf(ctx context.Context, holder domain.Address) (domain.Amount, error) {
	return c.ledger.BalanceOf(ctx, holder)
}

func (c *BalanceLedgerClient) Allowance(ctx context.Context, holder, spender domain.Address) (domain.Amount, error) {
	return c.ledger.Allowance(ctx, holder, spender)
}

func (c *BalanceLedgerClient) TransferFrom(ctx context.Context, payer, payee domain.Address, amount domain.Amount) error {
	return c.ledger.TransferFrom(ctx, c.self, payer, payee, amount)
}

func (c *BalanceLedgerClient) Transfer(ctx context.Context, payee domain.Address, amount domain.Amount) error {
	return c.ledger.Transfer(ctx, c.self, payee, amount)
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
