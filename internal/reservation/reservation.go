package reservation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "techtuto:register:email:"

var ErrReserved = errors.New("email reserved by another registration")

// releaseScript deletes the key only while it still holds our token, so a
// slow request cannot free a reservation that expired and was taken over.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// EmailReserver serializes concurrent registrations of the same email.
// A nil client disables it.
type EmailReserver struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewEmailReserver(rdb *redis.Client, ttl time.Duration) *EmailReserver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &EmailReserver{rdb: rdb, ttl: ttl}
}

// Reserve holds email until release is called or the TTL elapses.
func (r *EmailReserver) Reserve(ctx context.Context, email string) (func(), error) {
	if r == nil || r.rdb == nil || email == "" {
		return func() {}, nil
	}
	key := keyPrefix + hashEmail(email)
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve email: %w", err)
	}
	if !ok {
		return nil, ErrReserved
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, r.rdb, []string{key}, token).Err()
	}
	return release, nil
}

func hashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
