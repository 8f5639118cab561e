package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"pawhub/ingest-service/internal/lock"
)

func TestTryLock_UnreachableRedisIsAnError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	unlock, ok, err := lock.NewRedis(rdb, time.Minute).TryLock(context.Background(), "ingest:task:scrape")
	if err == nil {
		t.Fatal("TryLock should report the connection failure")
	}
	if ok || unlock != nil {
		t.Error("a failed TryLock must not hand out the lock")
	}
}
