// Package presence keeps online state and last-seen timestamps in Redis
// and applies each user's last-seen visibility policy on read.
package presence

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"collabchat/internal/constants"
	"collabchat/internal/errors"
	"collabchat/internal/models"

	"github.com/redis/go-redis/v9"
)

// Policy resolves the data a visibility decision needs
type Policy interface {
	GetLastSeenVisibility(ctx context.Context, userID string) (models.LastSeenVisibility, error)
	IsContactOf(ctx context.Context, ownerID, candidateID string) (bool, error)
}

// Cache is the Redis-backed presence cache
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	policy Policy
}

// releaseOnline deletes the online marker only if it still names the
// connection being closed
var releaseOnline = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Dial connects to the Redis server at url and verifies the connection
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.NewConfigError("redis.url", fmt.Sprintf("parse redis url: %v", err))
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, constants.DefaultRedisTimeout*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewAPIError("presence", "PING", http.StatusServiceUnavailable, err)
	}
	return client, nil
}

// New creates a presence cache. A zero ttl keeps last-seen keys forever.
func New(client redis.UniversalClient, prefix string, ttl time.Duration, policy Policy) *Cache {
	if prefix == "" {
		prefix = constants.DefaultPresencePrefix
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl, policy: policy}
}

func (c *Cache) lastSeenKey(userID string) string {
	return fmt.Sprintf("%s:last_seen:%s", c.prefix, userID)
}

func (c *Cache) onlineKey(userID string) string {
	return fmt.Sprintf("%s:online:%s", c.prefix, userID)
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetLastSeen overwrites the user's last-seen timestamp
func (c *Cache) SetLastSeen(ctx context.Context, userID string, ts time.Time) error {
	value := ts.UTC().Format(time.RFC3339Nano)
	if err := c.client.Set(ctx, c.lastSeenKey(userID), value, c.ttl).Err(); err != nil {
		return errors.NewAPIError("presence", "SET", http.StatusServiceUnavailable, err)
	}
	return nil
}

// rawLastSeen reads the stored timestamp without any policy check
func (c *Cache) rawLastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	value, err := c.client.Get(ctx, c.lastSeenKey(userID)).Result()
	if stderrors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.NewAPIError("presence", "GET", http.StatusServiceUnavailable, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, errors.ErrCodePresenceCache, "corrupt last seen value")
	}
	return ts, true, nil
}

// GetLastSeen returns target's last-seen time as viewer is allowed to see it.
// ok is false when the time is unknown or hidden by the target's policy.
//
// Everybody discloses to all viewers, Nobody to none (the target included)
// and MyContacts only to viewers whose phone is in the target's contacts.
func (c *Cache) GetLastSeen(ctx context.Context, viewerID, targetID string) (ts time.Time, ok bool, err error) {
	visibility, err := c.policy.GetLastSeenVisibility(ctx, targetID)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	switch visibility {
	case models.VisibleToEverybody:
	case models.VisibleToMyContacts:
		isContact, err := c.policy.IsContactOf(ctx, targetID, viewerID)
		if err != nil {
			return time.Time{}, false, err
		}
		if !isContact {
			return time.Time{}, false, nil
		}
	default:
		return time.Time{}, false, nil
	}

	return c.rawLastSeen(ctx, targetID)
}

// MarkOnline records connID as the user's live connection
func (c *Cache) MarkOnline(ctx context.Context, userID, connID string) error {
	if err := c.client.Set(ctx, c.onlineKey(userID), connID, 0).Err(); err != nil {
		return errors.NewAPIError("presence", "SET", http.StatusServiceUnavailable, err)
	}
	return nil
}

// MarkOffline clears the online marker if it still belongs to connID and
// reports whether it did. A newer connection's marker is left alone.
func (c *Cache) MarkOffline(ctx context.Context, userID, connID string) (bool, error) {
	n, err := releaseOnline.Run(ctx, c.client, []string{c.onlineKey(userID)}, connID).Int()
	if err != nil {
		return false, errors.NewAPIError("presence", "EVALSHA", http.StatusServiceUnavailable, err)
	}
	return n > 0, nil
}

func (c *Cache) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.onlineKey(userID)).Result()
	if err != nil {
		return false, errors.NewAPIError("presence", "EXISTS", http.StatusServiceUnavailable, err)
	}
	return n > 0, nil
}
