package redis

import (
	"context"
	"fmt"
	"strconv"

	"nft-marketplace/internal/domain"

	"github.com/go-redis/redis/v8"
)

// MaxLedgerAmount bounds every balance. Redis Lua numbers are doubles, so
// larger values would lose precision inside the scripts.
const MaxLedgerAmount = domain.Amount(1<<53 - 1)

var creditScript = redis.NewScript(`
	local balances = KEYS[1]
	local to, amount, limit = ARGV[1], tonumber(ARGV[2]), tonumber(ARGV[3])

	local to_balance = tonumber(redis.call('HGET', balances, to) or '0')
	if to_balance + amount > limit then
		return {0, "balance_overflow"}
	end

	redis.call('HINCRBY', balances, to, ARGV[2])
	return {1, "success"}
`)

var transferScript = redis.NewScript(`
	local balances = KEYS[1]
	local from, to = ARGV[1], ARGV[2]
	local amount, limit = tonumber(ARGV[3]), tonumber(ARGV[4])

	local from_balance = tonumber(redis.call('HGET', balances, from) or '0')
	if from_balance < amount then
		return {0, "insufficient_balance"}
	end
	if from == to or amount == 0 then
		return {1, "success"}
	end

	local to_balance = tonumber(redis.call('HGET', balances, to) or '0')
	if to_balance + amount > limit then
		return {0, "balance_overflow"}
	end

	redis.call('HINCRBY', balances, from, '-' .. ARGV[3])
	redis.call('HINCRBY', balances, to, ARGV[3])
	return {1, "success"}
`)

var transferFromScript = redis.NewScript(`
	local balances, allowances = KEYS[1], KEYS[2]
	local allowance_field, from, to = ARGV[1], ARGV[2], ARGV[3]
	local amount, limit = tonumber(ARGV[4]), tonumber(ARGV[5])

	local allowed = tonumber(redis.call('HGET', allowances, allowance_field) or '0')
	if allowed < amount then
		return {0, "insufficient_allowance"}
	end

	local from_balance = tonumber(redis.call('HGET', balances, from) or '0')
	if from_balance < amount then
		return {0, "insufficient_balance"}
	end

	if from ~= to and amount > 0 then
		local to_balance = tonumber(redis.call('HGET', balances, to) or '0')
		if to_balance + amount > limit then
			return {0, "balance_overflow"}
		end
		redis.call('HINCRBY', balances, from, '-' .. ARGV[4])
		redis.call('HINCRBY', balances, to, ARGV[4])
	end

	if amount > 0 then
		redis.call('HINCRBY', allowances, allowance_field, '-' .. ARGV[4])
	end
	return {1, "success"}
`)

// RedisTokenLedger keeps one fungible-balance contract in Redis hashes.
// Every mutation is a single Lua script, so concurrent service instances
// see atomic transfers.
type RedisTokenLedger struct {
	client *redis.Client
	ref    domain.ContractRef
}

func NewRedisTokenLedger(client *redis.Client, ref domain.ContractRef) *RedisTokenLedger {
	return &RedisTokenLedger{client: client, ref: ref}
}

func (r *RedisTokenLedger) balancesKey() string {
	return fmt.Sprintf("ledger:%s:balances", r.ref)
}

func (r *RedisTokenLedger) allowancesKey() string {
	return fmt.Sprintf("ledger:%s:allowances", r.ref)
}

func allowanceField(holder, spender domain.Address) string {
	return fmt.Sprintf("%s|%s", holder, spender)
}

func amountArg(amount domain.Amount) (string, error) {
	if amount > MaxLedgerAmount {
		return "", domain.ErrBalanceOverflow
	}
	return strconv.FormatUint(uint64(amount), 10), nil
}

func (r *RedisTokenLedger) Mint(ctx context.Context, to domain.Address, amount domain.Amount) error {
	if to == "" {
		return domain.ErrInvalidRecipient
	}
	arg, err := amountArg(amount)
	if err != nil {
		return err
	}

	result, err := creditScript.Run(ctx, r.client, []string{r.balancesKey()},
		string(to), arg, uint64(MaxLedgerAmount)).Result()
	return scriptError(result, err)
}

func (r *RedisTokenLedger) BalanceOf(ctx context.Context, holder domain.Address) (domain.Amount, error) {
	return r.readAmount(ctx, r.balancesKey(), string(holder))
}

func (r *RedisTokenLedger) Allowance(ctx context.Context, holder, spender domain.Address) (domain.Amount, error) {
	return r.readAmount(ctx, r.allowancesKey(), allowanceField(holder, spender))
}

// Approve sets, not adds to, the spender's allowance.
func (r *RedisTokenLedger) Approve(ctx context.Context, caller, spender domain.Address, amount domain.Amount) error {
	if spender == "" {
		return domain.ErrInvalidRecipient
	}
	arg, err := amountArg(amount)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.allowancesKey(), allowanceField(caller, spender), arg).Err()
}

func (r *RedisTokenLedger) Transfer(ctx context.Context, caller, to domain.Address, amount domain.Amount) error {
	if to == "" {
		return domain.ErrInvalidRecipient
	}
	arg, err := amountArg(amount)
	if err != nil {
		return domain.ErrInsufficientBalance
	}

	result, err := transferScript.Run(ctx, r.client, []string{r.balancesKey()},
		string(caller), string(to), arg, uint64(MaxLedgerAmount)).Result()
	return scriptError(result, err)
}

func (r *RedisTokenLedger) TransferFrom(ctx context.Context, spender, from, to domain.Address, amount domain.Amount) error {
	if to == "" {
		return domain.ErrInvalidRecipient
	}
	arg, err := amountArg(amount)
	if err != nil {
		return domain.ErrInsufficientAllowance
	}

	result, err := transferFromScript.Run(ctx, r.client, []string{r.balancesKey(), r.allowancesKey()},
		allowanceField(from, spender), string(from), string(to), arg, uint64(MaxLedgerAmount)).Result()
	return scriptError(result, err)
}

func (r *RedisTokenLedger) readAmount(ctx context.Context, key, field string) (domain.Amount, error) {
	value, err := r.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return domain.Amount(amount), nil
}

var scriptErrors = map[string]error{
	"insufficient_balance":   domain.ErrInsufficientBalance,
	"insufficient_allowance": domain.ErrInsufficientAllowance,
	"balance_overflow":       domain.ErrBalanceOverflow,
	"unknown_asset":          domain.ErrUnknownAsset,
	"transfer_rejected":      domain.ErrCustodyTransferRejected,
}

// scriptError decodes the {ok, reason} reply every script returns.
func scriptError(result interface{}, err error) error {
	if err != nil {
		return err
	}

	reply, ok := result.([]interface{})
	if !ok || len(reply) != 2 {
		return fmt.Errorf("unexpected script reply: %v", result)
	}
	if code, _ := reply[0].(int64); code == 1 {
		return nil
	}

	reason, _ := reply[1].(string)
	if known, ok := scriptErrors[reason]; ok {
		return known
	}
	return fmt.Errorf("script rejected: %s", reason)
}
