package redis

import (
	"context"
	"fmt"
	"strconv"

	"nft-marketplace/internal/domain"

	"github.com/go-redis/redis/v8"
)

var mintAssetScript = redis.NewScript(`
	local id = redis.call('INCR', KEYS[1]) - 1
	redis.call('HSET', KEYS[2], id, ARGV[1])
	redis.call('HSET', KEYS[3], id, ARGV[2])
	return id
`)

var approveAssetScript = redis.NewScript(`
	local owners, approvals = KEYS[1], KEYS[2]
	local id, caller, to = ARGV[1], ARGV[2], ARGV[3]

	local owner = redis.call('HGET', owners, id)
	if owner == false then
		return {0, "unknown_asset"}
	end
	if owner ~= caller then
		return {0, "transfer_rejected"}
	end

	redis.call('HSET', approvals, id, to)
	return {1, "success"}
`)

var transferAssetScript = redis.NewScript(`
	local owners, approvals = KEYS[1], KEYS[2]
	local id, caller, from, to = ARGV[1], ARGV[2], ARGV[3], ARGV[4]

	local owner = redis.call('HGET', owners, id)
	if owner == false then
		return {0, "unknown_asset"}
	end
	local approved = redis.call('HGET', approvals, id) or ''
	if owner ~= from or (caller ~= from and caller ~= approved) then
		return {0, "transfer_rejected"}
	end

	redis.call('HSET', owners, id, to)
	redis.call('HDEL', approvals, id)
	return {1, "success"}
`)

// RedisAssetCollection keeps one unique-asset contract in Redis. Ids come
// from a counter key and start at 0.
type RedisAssetCollection struct {
	client *redis.Client
	ref    domain.ContractRef
}

func NewRedisAssetCollection(client *redis.Client, ref domain.ContractRef) *RedisAssetCollection {
	return &RedisAssetCollection{client: client, ref: ref}
}

func (r *RedisAssetCollection) key(suffix string) string {
	return fmt.Sprintf("collection:%s:%s", r.ref, suffix)
}

func assetField(id domain.AssetID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (r *RedisAssetCollection) Mint(ctx context.Context, to domain.Address, uri string) (domain.AssetID, error) {
	if to == "" {
		return 0, domain.ErrInvalidRecipient
	}

	id, err := mintAssetScript.Run(ctx, r.client,
		[]string{r.key("seq"), r.key("owners"), r.key("uris")}, string(to), uri).Int64()
	if err != nil {
		return 0, err
	}
	return domain.AssetID(id), nil
}

func (r *RedisAssetCollection) OwnerOf(ctx context.Context, id domain.AssetID) (domain.Address, error) {
	owner, err := r.client.HGet(ctx, r.key("owners"), assetField(id)).Result()
	if err == redis.Nil {
		return "", domain.ErrUnknownAsset
	}
	if err != nil {
		return "", err
	}
	return domain.Address(owner), nil
}

func (r *RedisAssetCollection) TokenURI(ctx context.Context, id domain.AssetID) (string, error) {
	uri, err := r.client.HGet(ctx, r.key("uris"), assetField(id)).Result()
	if err == redis.Nil {
		return "", domain.ErrUnknownAsset
	}
	return uri, err
}

func (r *RedisAssetCollection) Approve(ctx context.Context, caller, to domain.Address, id domain.AssetID) error {
	result, err := approveAssetScript.Run(ctx, r.client, []string{r.key("owners"), r.key("approvals")},
		assetField(id), string(caller), string(to)).Result()
	return scriptError(result, err)
}

func (r *RedisAssetCollection) GetApproved(ctx context.Context, id domain.AssetID) (domain.Address, error) {
	if _, err := r.OwnerOf(ctx, id); err != nil {
		return "", err
	}

	approved, err := r.client.HGet(ctx, r.key("approvals"), assetField(id)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return domain.Address(approved), nil
}

// TransferFrom moves id from -> to and consumes any approval.
func (r *RedisAssetCollection) TransferFrom(ctx context.Context, caller, from, to domain.Address, id domain.AssetID) error {
	if to == "" {
		return domain.ErrInvalidRecipient
	}

	result, err := transferAssetScript.Run(ctx, r.client, []string{r.key("owners"), r.key("approvals")},
		assetField(id), string(caller), string(from), string(to)).Result()
	return scriptError(result, err)
}
