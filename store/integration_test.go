//go:build integration

package store

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/hoppin/models"
)

const (
	redisPort    = "6379/tcp"
	postgresPort = "5432/tcp"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})
	return c
}

func TestRedisStoreIntegration(t *testing.T) {
	skipIfNoDocker(t)
	ctx := context.Background()

	c := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{redisPort},
		WaitingFor:   wait.ForListeningPort(redisPort).WithStartupTimeout(60 * time.Second),
	})
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, redisPort)
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	s := NewRedis(rdb, WithMaxAttempts(200), WithBackoff(time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestPostgresStoreIntegration(t *testing.T) {
	skipIfNoDocker(t)
	ctx := context.Background()

	c := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_USER":     "hoppin",
			"POSTGRES_PASSWORD": "hoppin",
			"POSTGRES_DB":       "hoppin",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(postgresPort),
		).WithStartupTimeout(90 * time.Second),
	})
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, postgresPort)
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=hoppin password=hoppin dbname=hoppin sslmode=disable", host, port.Port())
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Document{}))

	s := NewSQL(db, WithMaxAttempts(200), WithBackoff(time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

// exerciseStore checks the behaviour every backend must share.
func exerciseStore(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("merge", func(t *testing.T) {
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
			return tx.Set("docs/merge", Fields{"x": 1, "y": "two"})
		}))
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
			return tx.Set("docs/merge", Fields{"x": 3}, Merge())
		}))
		snap, err := s.Get(ctx, "docs/merge")
		require.NoError(t, err)
		x, _ := snap.Int("x")
		y, _ := snap.String("y")
		assert.Equal(t, int64(3), x)
		assert.Equal(t, "two", y)
	})

	t.Run("server timestamp", func(t *testing.T) {
		var now time.Time
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
			now = tx.Now()
			return tx.Set("docs/ts", Fields{"at": ServerTimestamp})
		}))
		snap, err := s.Get(ctx, "docs/ts")
		require.NoError(t, err)
		at, ok := snap.Time("at")
		require.True(t, ok)
		assert.True(t, at.Equal(now))
	})

	t.Run("read after write", func(t *testing.T) {
		err := s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
			if err := tx.Set("docs/raw", Fields{"x": 1}); err != nil {
				return err
			}
			_, err := tx.Get("docs/raw")
			return err
		})
		require.ErrorIs(t, err, ErrReadAfterWrite)
		snap, err := s.Get(ctx, "docs/raw")
		require.NoError(t, err)
		assert.False(t, snap.Exists)
	})

	t.Run("concurrent increments", func(t *testing.T) {
		const workers = 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
					snap, err := tx.Get("counters/c")
					if err != nil {
						return err
					}
					n, _ := snap.Int("n")
					return tx.Set("counters/c", Fields{"n": n + 1}, Merge())
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		snap, err := s.Get(ctx, "counters/c")
		require.NoError(t, err)
		n, _ := snap.Int("n")
		assert.Equal(t, int64(workers), n)
	})
}
