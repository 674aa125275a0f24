package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/mediahub/cache"
	"github.com/hrygo/mediahub/store"
)

const (
	aliasCacheTTL = 5 * time.Minute
	aliasTokenLen = 6
)

// AliasService maps author user ids to short pseudonymous aliases. An alias
// is derived deterministically from the user id and a deployment salt, so
// the same author keeps the same alias across messages and restarts, while
// the real id never leaves the engine. The first derivation is persisted and
// wins forever.
type AliasService struct {
	store *store.Store
	cache cache.Cache
	salt  string
}

// NewAliasService returns an alias service. The salt must stay stable for
// the lifetime of a deployment; changing it re-aliases every author.
func NewAliasService(s *store.Store, c cache.Cache, salt string) *AliasService {
	return &AliasService{store: s, cache: c, salt: salt}
}

// AliasFor returns the alias for a user, creating and persisting it on first
// sight. A zero user id (channel posts without a sender) yields "".
func (a *AliasService) AliasFor(ctx context.Context, userID int64) (string, error) {
	if userID == 0 {
		return "", nil
	}

	cacheKey := fmt.Sprintf("alias:%d", userID)
	if alias, ok, err := a.cache.Get(ctx, cacheKey); err == nil && ok {
		return alias, nil
	}

	alias, err := a.store.GetUserAlias(ctx, userID)
	if err == store.ErrNotFound {
		alias, err = a.store.UpsertUserAlias(ctx, userID, a.derive(userID))
	}
	if err != nil {
		return "", fmt.Errorf("alias lookup for user %d: %w", userID, err)
	}

	_ = a.cache.Set(ctx, cacheKey, alias, aliasCacheTTL)
	return alias, nil
}

// Tag formats an alias as the attribution line appended to outgoing copies.
func (a *AliasService) Tag(alias string) string {
	if alias == "" {
		return ""
	}
	return "— " + alias
}

// derive computes the deterministic alias token: a salted name-based UUID,
// short-encoded and truncated.
func (a *AliasService) derive(userID int64) string {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(a.salt))
	id := uuid.NewSHA1(ns, []byte(strconv.FormatInt(userID, 10)))
	token := strings.ToLower(shortuuid.DefaultEncoder.Encode(id))
	if len(token) > aliasTokenLen {
		token = token[:aliasTokenLen]
	}
	return "u-" + token
}
