package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

const (
	sweetKeyPrefix     = "sweet:"
	sweetsByCreatedKey = "sweets:by_created"
	userKeyPrefix      = "user:"
	userEmailKeyPrefix = "user:email:"
	userNameKeyPrefix  = "user:username:"
	maxWatchAttempts   = 3
)

// Both scripts reply {status, quantity, field, value, ...}. Status 0 means the
// sweet does not exist, 2 not enough stock and 3 the stock limit would be
// exceeded; quantity is then the stock on hand. On status 1 the reply carries
// the hash as it was written, so no second read is needed.
var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
	return {0, 0}
end

local current = tonumber(redis.call('HGET', key, 'quantity'))
if current < quantity then
	return {2, current}
end

local left = redis.call('HINCRBY', key, 'quantity', -quantity)
redis.call('HSET', key, 'updated_at', ARGV[2])
return {1, left, unpack(redis.call('HGETALL', key))}
`)

var incrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
	return {0, 0}
end

local current = tonumber(redis.call('HGET', key, 'quantity'))
if current + quantity > tonumber(ARGV[3]) then
	return {3, current}
end

local total = redis.call('HINCRBY', key, 'quantity', quantity)
redis.call('HSET', key, 'updated_at', ARGV[2])
return {1, total, unpack(redis.call('HGETALL', key))}
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) Close() error {
	return r.client.Close()
}

func (r *RedisAdapter) CreateSweet(ctx context.Context, s domain.Sweet) error {
	key := sweetKeyPrefix + s.ID
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, sweetFields(s))
		pipe.ZAdd(ctx, sweetsByCreatedKey, redis.Z{Score: float64(s.CreatedAt.UnixMicro()), Member: s.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store sweet: %w", err)
	}
	return nil
}

func (r *RedisAdapter) ListSweets(ctx context.Context, f domain.SweetFilter) ([]domain.Sweet, error) {
	ids, err := r.client.ZRevRange(ctx, sweetsByCreatedKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sweet ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, sweetKeyPrefix+id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load sweets: %w", err)
	}

	out := make([]domain.Sweet, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		// deleted between the range and the load
		if len(fields) == 0 {
			continue
		}
		s, err := parseSweet(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *RedisAdapter) GetSweet(ctx context.Context, id string) (*domain.Sweet, error) {
	fields, err := r.client.HGetAll(ctx, sweetKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("load sweet: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}

	s, err := parseSweet(id, fields)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSweet runs mutate under WATCH so that a concurrent write to the same
// sweet aborts the transaction; the whole attempt is repeated a few times.
func (r *RedisAdapter) UpdateSweet(ctx context.Context, id string, mutate func(*domain.Sweet) error) (*domain.Sweet, error) {
	key := sweetKeyPrefix + id

	var updated domain.Sweet
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("load sweet: %w", err)
		}
		if len(fields) == 0 {
			return domain.ErrNotFound
		}

		s, err := parseSweet(id, fields)
		if err != nil {
			return err
		}
		if err := mutate(&s); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, sweetFields(s))
			return nil
		})
		if err != nil {
			return err
		}
		updated = s
		return nil
	}

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, fmt.Errorf("update sweet %s: %w", id, redis.TxFailedErr)
}

func (r *RedisAdapter) DeleteSweet(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, sweetKeyPrefix+id)
		pipe.ZRem(ctx, sweetsByCreatedKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete sweet: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RedisAdapter) DecrementStock(ctx context.Context, id string, quantity int, at time.Time) (*domain.Sweet, error) {
	return r.runStockScript(ctx, decrementStockScript, id, quantity, at)
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, id string, quantity int, at time.Time) (*domain.Sweet, error) {
	return r.runStockScript(ctx, incrementStockScript, id, quantity, at)
}

func (r *RedisAdapter) runStockScript(ctx context.Context, script *redis.Script, id string, quantity int, at time.Time) (*domain.Sweet, error) {
	key := sweetKeyPrefix + id

	reply, err := script.Run(ctx, r.client, []string{key}, quantity, at.UnixMicro(), domain.MaxQuantity).Slice()
	if err != nil {
		return nil, fmt.Errorf("stock script: %w", err)
	}
	if len(reply) < 2 {
		return nil, fmt.Errorf("stock script: unexpected reply %v", reply)
	}
	status, ok1 := reply[0].(int64)
	current, ok2 := reply[1].(int64)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("stock script: unexpected reply %v", reply)
	}

	switch status {
	case 0:
		return nil, domain.ErrNotFound
	case 2:
		return nil, &domain.InsufficientStockError{Available: int(current)}
	case 3:
		return nil, domain.ErrInvalidQuantity
	case 1:
	default:
		return nil, fmt.Errorf("stock script: unknown status %d", status)
	}

	fields, err := replyFields(reply[2:])
	if err != nil {
		return nil, fmt.Errorf("stock script: %w", err)
	}
	s, err := parseSweet(id, fields)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// replyFields turns a flat HGETALL style reply into a map.
func replyFields(flat []interface{}) (map[string]string, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("odd field count %d", len(flat))
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, ok1 := flat[i].(string)
		v, ok2 := flat[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("non-string field at %d", i)
		}
		fields[k] = v
	}
	return fields, nil
}

func (r *RedisAdapter) CreateUser(ctx context.Context, u domain.User) error {
	emailKey := userEmailKeyPrefix + u.Email
	nameKey := userNameKeyPrefix + strings.ToLower(u.Username)

	ok, err := r.client.SetNX(ctx, emailKey, u.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve email: %w", err)
	}
	if !ok {
		return domain.ErrAlreadyExists
	}

	ok, err = r.client.SetNX(ctx, nameKey, u.ID, 0).Result()
	if err != nil || !ok {
		r.client.Del(ctx, emailKey)
		if err != nil {
			return fmt.Errorf("reserve username: %w", err)
		}
		return domain.ErrAlreadyExists
	}

	err = r.client.HSet(ctx, userKeyPrefix+u.ID, map[string]interface{}{
		"username":      u.Username,
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"role":          string(u.Role),
		"created_at":    u.CreatedAt.UnixMicro(),
		"updated_at":    u.UpdatedAt.UnixMicro(),
	}).Err()
	if err != nil {
		r.client.Del(ctx, emailKey, nameKey)
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}

func (r *RedisAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUserByIndex(ctx, userEmailKeyPrefix+email)
}

func (r *RedisAdapter) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getUserByIndex(ctx, userNameKeyPrefix+strings.ToLower(username))
}

func (r *RedisAdapter) getUserByIndex(ctx context.Context, indexKey string) (*domain.User, error) {
	id, err := r.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	fields, err := r.client.HGetAll(ctx, userKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}

	u := domain.User{
		ID:           id,
		Username:     fields["username"],
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
	}
	u.Role, _ = domain.ParseRole(fields["role"])
	if u.CreatedAt, err = parseMicros(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	if u.UpdatedAt, err = parseMicros(fields["updated_at"]); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &u, nil
}

func sweetFields(s domain.Sweet) map[string]interface{} {
	return map[string]interface{}{
		"name":       s.Name,
		"category":   s.Category,
		"price":      strconv.FormatFloat(s.Price, 'g', -1, 64),
		"quantity":   s.Quantity,
		"created_at": s.CreatedAt.UnixMicro(),
		"updated_at": s.UpdatedAt.UnixMicro(),
	}
}

func parseSweet(id string, fields map[string]string) (domain.Sweet, error) {
	s := domain.Sweet{
		ID:       id,
		Name:     fields["name"],
		Category: fields["category"],
	}

	var err error
	if s.Price, err = strconv.ParseFloat(fields["price"], 64); err != nil {
		return s, fmt.Errorf("sweet %s: price: %w", id, err)
	}
	if s.Quantity, err = strconv.Atoi(fields["quantity"]); err != nil {
		return s, fmt.Errorf("sweet %s: quantity: %w", id, err)
	}
	if s.CreatedAt, err = parseMicros(fields["created_at"]); err != nil {
		return s, fmt.Errorf("sweet %s: %w", id, err)
	}
	if s.UpdatedAt, err = parseMicros(fields["updated_at"]); err != nil {
		return s, fmt.Errorf("sweet %s: %w", id, err)
	}
	return s, nil
}

func parseMicros(v string) (time.Time, error) {
	us, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	return time.UnixMicro(us).UTC(), nil
}
