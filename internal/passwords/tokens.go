package passwords

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
)

// DefaultTokenTTL is how long a reset link stays usable.
const DefaultTokenTTL = 6 * time.Hour

// TokenStore keeps reset token digests in Redis. Only one token per user is
// live at a time and the plaintext token is never stored.
type TokenStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client redis.UniversalClient, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenStore{client: client, ttl: ttl}
}

// TTL exposes the token lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

// Issue creates a token for userID, revoking any previous one.
func (s *TokenStore) Issue(ctx context.Context, userID int64) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("passwords: token entropy: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	digest := digestOf(token)

	if err := s.RevokeUser(ctx, userID); err != nil {
		return "", err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey(digest), strconv.FormatInt(userID, 10), s.ttl)
		pipe.Set(ctx, userKey(userID), digest, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("passwords: store token: %w", err)
	}
	return token, nil
}

// Lookup returns the user a live token belongs to.
func (s *TokenStore) Lookup(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, shared.ErrInvalidToken
	}
	value, err := s.client.Get(ctx, tokenKey(digestOf(token))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.ErrInvalidToken
		}
		return 0, fmt.Errorf("passwords: lookup token: %w", err)
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, shared.ErrInvalidToken
	}
	return id, nil
}

// Claim atomically takes token out of the store and returns its owner with
// the lifetime it had left. Only one caller can claim a given token.
func (s *TokenStore) Claim(ctx context.Context, token string) (int64, time.Duration, error) {
	if token == "" {
		return 0, 0, shared.ErrInvalidToken
	}
	key := tokenKey(digestOf(token))
	var (
		ttlCmd *redis.DurationCmd
		getCmd *redis.StringCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ttlCmd = pipe.PTTL(ctx, key)
		getCmd = pipe.GetDel(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("passwords: claim token: %w", err)
	}
	value, err := getCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, shared.ErrInvalidToken
		}
		return 0, 0, fmt.Errorf("passwords: claim token: %w", err)
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, 0, shared.ErrInvalidToken
	}
	return id, ttlCmd.Val(), nil
}

// Restore puts a claimed token back for its remaining ttl so a rejected form
// can be resubmitted. Nothing is restored once the user has a newer token.
func (s *TokenStore) Restore(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	digest := digestOf(token)
	current, err := s.client.Get(ctx, userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("passwords: restore token: %w", err)
	}
	if current != digest {
		return nil
	}
	if err := s.client.SetNX(ctx, tokenKey(digest), strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("passwords: restore token: %w", err)
	}
	return nil
}

// RevokeUser drops the live token of userID, if any.
func (s *TokenStore) RevokeUser(ctx context.Context, userID int64) error {
	digest, err := s.client.Get(ctx, userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("passwords: revoke token: %w", err)
	}
	if err := s.client.Del(ctx, tokenKey(digest), userKey(userID)).Err(); err != nil {
		return fmt.Errorf("passwords: revoke token: %w", err)
	}
	return nil
}

func digestOf(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func tokenKey(digest string) string {
	return "password_reset:" + digest
}

func userKey(userID int64) string {
	return "password_reset_user:" + strconv.FormatInt(userID, 10)
}
