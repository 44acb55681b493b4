package cooldown

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const envTestRedisAddr = "ATTENDMARK_TEST_REDIS_ADDR"

func TestRedisWindow(t *testing.T) {
	addr := os.Getenv(envTestRedisAddr)
	if addr == "" {
		t.Skipf("%s not set", envTestRedisAddr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	gov := NewRedis(client, 300*time.Millisecond)
	key := "test-" + uuid.NewString()
	t.Cleanup(func() { _ = gov.Release(context.Background(), key) })

	mustAdmit(t, gov, key, true)
	mustAdmit(t, gov, key, false)
	time.Sleep(400 * time.Millisecond)
	mustAdmit(t, gov, key, true)
	if err := gov.Release(context.Background(), key); err != nil {
		t.Fatalf("release: %v", err)
	}
	mustAdmit(t, gov, key, true)
}

func TestRedisZeroWindowSkipsRoundTrip(t *testing.T) {
	t.Parallel()

	// An unreachable client proves no command is issued.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	mustAdmit(t, NewRedis(client, 0), "r1", true)
}
