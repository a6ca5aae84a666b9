package health

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DatabaseCheck pings the directory database connection.
func DatabaseCheck(db *gorm.DB) Check {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("acquire sql db: %w", err)
		}
		return sqlDB.PingContext(ctx)
	}
}

// RedisCheck pings the token store backend.
func RedisCheck(client redis.UniversalClient) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// ProviderCheck issues an unauthenticated health request against the auth
// provider's base URL. Any HTTP response below 500 counts as reachable.
func ProviderCheck(client *http.Client, baseURL, apiKey string) Check {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/auth/v1/health", nil)
		if err != nil {
			return err
		}
		req.Header.Set("apikey", apiKey)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("provider returned %d", resp.StatusCode)
		}
		return nil
	}
}
