package restriction

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tranchebook/pkg/domain"
)

const denyListKey = "tranchebook:eligibility:denied"

// RedisDenyList is an eligibility checker backed by a redis set, so
// operations staff can block and unblock accounts without redeploys. Pair
// restrictions are not supported at this layer; compose with StaticList when
// needed.
type RedisDenyList struct {
	client *redis.Client
}

// NewRedisDenyList wraps an existing redis client.
func NewRedisDenyList(client *redis.Client) *RedisDenyList {
	return &RedisDenyList{client: client}
}

func (l *RedisDenyList) CheckEligible(ctx context.Context, account domain.Address) (bool, error) {
	denied, err := l.client.SIsMember(ctx, denyListKey, account.String()).Result()
	if err != nil {
		return false, fmt.Errorf("deny list lookup: %w", err)
	}
	return !denied, nil
}

func (l *RedisDenyList) CheckPair(context.Context, domain.Address, domain.Address) (bool, error) {
	return true, nil
}

// Deny adds an account to the deny list.
func (l *RedisDenyList) Deny(ctx context.Context, account domain.Address) error {
	if err := l.client.SAdd(ctx, denyListKey, account.String()).Err(); err != nil {
		return fmt.Errorf("deny %s: %w", account, err)
	}
	return nil
}

// Allow removes an account from the deny list.
func (l *RedisDenyList) Allow(ctx context.Context, account domain.Address) error {
	if err := l.client.SRem(ctx, denyListKey, account.String()).Err(); err != nil {
		return fmt.Errorf("allow %s: %w", account, err)
	}
	return nil
}
