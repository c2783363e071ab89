package services

import (
	"context"
	"testing"

	"nft-marketplace/internal/domain"
	"nft-marketplace/internal/infrastructure/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractDirectory_Resolve(t *testing.T) {
	directory := NewContractDirectory(registryAddr)
	directory.RegisterAssetCollection(nftRef, memory.NewAssetCollection("Test NFT"))
	directory.RegisterTokenLedger(tokenRef, memory.NewTokenLedger("Test Token", "XTS"))

	_, ok := directory.AssetCustody(nftRef)
	assert.True(t, ok)
	_, ok = directory.AssetCustody("")
	assert.False(t, ok)
	_, ok = directory.AssetCustody(tokenRef)
	assert.False(t, ok)

	_, ok = directory.BalanceLedger(tokenRef)
	assert.True(t, ok)
	_, ok = directory.BalanceLedger("")
	assert.False(t, ok)
	_, ok = directory.BalanceLedger(nftRef)
	assert.False(t, ok)
}

func TestAssetCustodyClient_Approval(t *testing.T) {
	ctx := context.Background()
	collection := memory.NewAssetCollection("Test NFT")
	client := NewAssetCustodyClient(collection, registryAddr)
	id, err := collection.Mint(ctx, owner, "uri")
	require.NoError(t, err)

	approved, err := client.IsApprovedForTransfer(ctx, id, owner)
	require.NoError(t, err)
	assert.False(t, approved)

	require.NoError(t, collection.Approve(ctx, owner, registryAddr, id))

	approved, err = client.IsApprovedForTransfer(ctx, id, owner)
	require.NoError(t, err)
	assert.True(t, approved)

	approved, err = client.IsApprovedForTransfer(ctx, id, user1)
	require.NoError(t, err)
	assert.False(t, approved)

	_, err = client.IsApprovedForTransfer(ctx, 99, owner)
	require.ErrorIs(t, err, domain.ErrUnknownAsset)

	require.NoError(t, client.TransferCustody(ctx, id, owner, registryAddr))
	holder, err := collection.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, registryAddr, holder)
}

func TestBalanceLedgerClient_ActsAsRegistry(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewTokenLedger("Test Token", "XTS")
	client := NewBalanceLedgerClient(ledger, registryAddr)
	require.NoError(t, ledger.Mint(ctx, user1, 1000))
	require.NoError(t, ledger.Approve(ctx, user1, registryAddr, 400))

	require.NoError(t, client.TransferFrom(ctx, user1, registryAddr, 400))
	require.ErrorIs(t, client.TransferFrom(ctx, user1, registryAddr, 1), domain.ErrInsufficientAllowance)

	require.NoError(t, client.Transfer(ctx, user2, 150))

	balance, err := client.BalanceOf(ctx, registryAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(250), balance)
	balance, err = client.BalanceOf(ctx, user2)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(150), balance)
}
