package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"telecare-backend/pkg/push"
)

// PushTokenExpiry bounds how long unused device tokens are kept
const PushTokenExpiry = 30 * 24 * time.Hour

// PushTokenRepository handles device push token storage in Redis
type PushTokenRepository struct {
	client *redis.Client
}

// NewPushTokenRepository creates a new push token repository
func NewPushTokenRepository(client *redis.Client) *PushTokenRepository {
	return &PushTokenRepository{client: client}
}

// Store registers a device token for a user
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.UpdatedAt = time.Now().Unix()
	if token.CreatedAt == 0 {
		token.CreatedAt = token.UpdatedAt
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tokenKey := fmt.Sprintf("push:token:%s", token.Token)
	if err := r.client.Set(ctx, tokenKey, data, PushTokenExpiry).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	userTokensKey := fmt.Sprintf("push:user:%s:tokens", token.UserID)
	if err := r.client.SAdd(ctx, userTokensKey, token.Token).Err(); err != nil {
		return fmt.Errorf("failed to add token to user set: %w", err)
	}
	// Best-effort bound on the user index
	r.client.Expire(ctx, userTokensKey, PushTokenExpiry)

	return nil
}

// GetByUser returns all registered tokens for a user
func (r *PushTokenRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	userTokensKey := fmt.Sprintf("push:user:%s:tokens", userID)
	tokenStrs, err := r.client.SMembers(ctx, userTokensKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user tokens: %w", err)
	}

	tokens := make([]*push.Token, 0, len(tokenStrs))
	for _, tokenStr := range tokenStrs {
		data, err := r.client.Get(ctx, fmt.Sprintf("push:token:%s", tokenStr)).Result()
		if err != nil {
			if err == redis.Nil {
				// Token record expired; drop it from the index
				r.client.SRem(ctx, userTokensKey, tokenStr)
				continue
			}
			return nil, fmt.Errorf("failed to get token: %w", err)
		}

		var token push.Token
		if err := json.Unmarshal([]byte(data), &token); err != nil {
			continue
		}
		tokens = append(tokens, &token)
	}

	return tokens, nil
}

// Delete removes a device token
func (r *PushTokenRepository) Delete(ctx context.Context, userID uuid.UUID, tokenStr string) error {
	if err := r.client.Del(ctx, fmt.Sprintf("push:token:%s", tokenStr)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	userTokensKey := fmt.Sprintf("push:user:%s:tokens", userID)
	r.client.SRem(ctx, userTokensKey, tokenStr)
	return nil
}
