package memory

import (
	"context"
	"sync"

	"nft-marketplace/internal/domain"
)

type asset struct {
	owner    domain.Address
	approved domain.Address
	uri      string
}

// AssetCollection is an in-process unique-asset contract. Ids are assigned
// sequentially from 0.
type AssetCollection struct {
	name   string
	assets []*asset
	mutex  sync.RWMutex
}

func NewAssetCollection(name string) *AssetCollection {
	return &AssetCollection{name: name}
}

func (c *AssetCollection) Name() string {
	return c.name
}

func (c *AssetCollection) Mint(ctx context.Context, to domain.Address, uri string) (domain.AssetID, error) {
	if to == "" {
		return 0, domain.ErrInvalidRecipient
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	id := domain.AssetID(len(c.assets))
	c.assets = append(c.assets, &asset{owner: to, uri: uri})
	return id, nil
}

func (c *AssetCollection) lookup(id domain.AssetID) (*asset, error) {
	if uint64(id) >= uint64(len(c.assets)) {
		return nil, domain.ErrUnknownAsset
	}
	return c.assets[id], nil
}

func (c *AssetCollection) OwnerOf(ctx context.Context, id domain.AssetID) (domain.Address, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	a, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	return a.owner, nil
}

func (c *AssetCollection) TokenURI(ctx context.Context, id domain.AssetID) (string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	a, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	return a.uri, nil
}

func (c *AssetCollection) Approve(ctx context.Context, caller, to domain.Address, id domain.AssetID) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	a, err := c.lookup(id)
	if err != nil {
		return err
	}
	if a.owner != caller {
		return domain.ErrCustodyTransferRejected
	}
	a.approved = to
	return nil
}

func (c *AssetCollection) GetApproved(ctx context.Context, id domain.AssetID) (domain.Address, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	a, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	return a.approved, nil
}

// TransferFrom moves id from -> to. The caller must be the holder or the
// approved address, and the approval is consumed.
func (c *AssetCollection) TransferFrom(ctx context.Context, caller, from, to domain.Address, id domain.AssetID) error {
	if to == "" {
		return domain.ErrInvalidRecipient
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	a, err := c.lookup(id)
	if err != nil {
		return err
	}
	if a.owner != from || (caller != from && caller != a.approved) {
		return domain.ErrCustodyTransferRejected
	}
	a.owner = to
	a.approved = ""
	return nil
}
