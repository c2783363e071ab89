package memory

import (
	"context"
	"math"
	"sync"

	"nft-marketplace/internal/domain"
)

// TokenLedger is an in-process fungible-balance contract.
type TokenLedger struct {
	name       string
	symbol     string
	balances   map[domain.Address]domain.Amount
	allowances map[domain.Address]map[domain.Address]domain.Amount
	mutex      sync.RWMutex
}

func NewTokenLedger(name, symbol string) *TokenLedger {
	return &TokenLedger{
		name:       name,
		symbol:     symbol,
		balances:   make(map[domain.Address]domain.Amount),
		allowances: make(map[domain.Address]map[domain.Address]domain.Amount),
	}
}

func (l *TokenLedger) Name() string   { return l.name }
func (l *TokenLedger) Symbol() string { return l.symbol }

func (l *TokenLedger) Mint(ctx context.Context, to domain.Address, amount domain.Amount) error {
	if to == "" {
		return domain.ErrInvalidRecipient
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.credit(to, amount)
}

func (l *TokenLedger) BalanceOf(ctx context.Context, holder domain.Address) (domain.Amount, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.balances[holder], nil
}

func (l *TokenLedger) Allowance(ctx context.Context, holder, spender domain.Address) (domain.Amount, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.allowances[holder][spender], nil
}

// Approve sets, not adds to, the spender's allowance.
func (l *TokenLedger) Approve(ctx context.Context, caller, spender domain.Address, amount domain.Amount) error {
	if spender == "" {
		return domain.ErrInvalidRecipient
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.allowances[caller] == nil {
		l.allowances[caller] = make(map[domain.Address]domain.Amount)
	}
	l.allowances[caller][spender] = amount
	return nil
}

func (l *TokenLedger) Transfer(ctx context.Context, caller, to domain.Address, amount domain.Amount) error {
	if to == "" {
		return domain.ErrInvalidRecipient
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.move(caller, to, amount)
}

func (l *TokenLedger) TransferFrom(ctx context.Context, spender, from, to domain.Address, amount domain.Amount) error {
	if to == "" {
		return domain.ErrInvalidRecipient
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	allowed := l.allowances[from][spender]
	if allowed < amount {
		return domain.ErrInsufficientAllowance
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	if spenders := l.allowances[from]; spenders != nil {
		spenders[spender] = allowed - amount
	}
	return nil
}

// move must be called with the write lock held.
func (l *TokenLedger) move(from, to domain.Address, amount domain.Amount) error {
	if l.balances[from] < amount {
		return domain.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	if l.balances[to] > math.MaxUint64-amount {
		return domain.ErrBalanceOverflow
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *TokenLedger) credit(to domain.Address, amount domain.Amount) error {
	if l.balances[to] > math.MaxUint64-amount {
		return domain.ErrBalanceOverflow
	}
	l.balances[to] += amount
	return nil
}
