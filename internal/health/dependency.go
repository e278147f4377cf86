package health

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
)

// DBChecker pings the pool and confirms the catalog table has been migrated.
type DBChecker struct {
	db *gorm.DB
}

func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{db: db}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "db", Healthy: true}
	sqlDB, err := c.db.DB()
	if err != nil {
		return unhealthy(res, err.Error())
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unhealthy(res, err.Error())
	}
	if !c.db.WithContext(ctx).Migrator().HasTable(&domain.Product{}) {
		return unhealthy(res, "products table missing")
	}
	return res
}

type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker returns nil when no client is configured so the probe runner
// skips it.
func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "redis", Healthy: true}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return unhealthy(res, err.Error())
	}
	return res
}

func unhealthy(res CheckResult, msg string) CheckResult {
	res.Healthy = false
	res.Error = msg
	return res
}
