package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/commute-rides/internal/models"
)

// RedisEmployeeCache shares the employee cache across engine replicas.
// Redis failures fall through to the collaborator, never to the caller.
type RedisEmployeeCache struct {
	src    EmployeeSource
	client *redis.Client
	ttl    time.Duration
}

func NewRedisEmployeeCache(src EmployeeSource, addr, password string, ttl time.Duration) *RedisEmployeeCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisEmployeeCache{src: src, client: c, ttl: ttl}
}

func (c *RedisEmployeeCache) Get(ctx context.Context, empID string) (models.Employee, error) {
	key := cacheKey(empID)
	if b, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var emp models.Employee
		if json.Unmarshal(b, &emp) == nil {
			return emp, nil
		}
	}
	emp, err := c.src.Get(ctx, empID)
	if err != nil {
		return models.Employee{}, err
	}
	if b, err := json.Marshal(emp); err == nil {
		_ = c.client.Set(ctx, key, b, c.ttl).Err()
	}
	return emp, nil
}

func (c *RedisEmployeeCache) Resolve(ctx context.Context, ids []string) map[string]models.Employee {
	out := make(map[string]models.Employee, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if emp, err := c.Get(ctx, id); err == nil {
			out[id] = emp
		}
	}
	return out
}

func cacheKey(empID string) string { return "employee:profile:" + empID }
