// Package postgrestest starts a disposable PostgreSQL server with the
// pgvector extension for integration tests.
package postgrestest

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Aleph-Alpha/lexgraph/v1/postgres"
)

const (
	image    = "pgvector/pgvector:pg16"
	user     = "testuser"
	password = "testpass"
	dbName   = "testdb"
)

// Start runs a container, waits until it accepts queries and returns the
// connection config. The container is terminated when t finishes. Start skips
// the test in -short mode.
func Start(t *testing.T) postgres.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	port, err := freePort()
	if err != nil {
		t.Fatalf("could not get free port: %v", err)
	}

	req := testcontainers.ContainerRequest{
		Image: image,
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       dbName,
		},
		ExposedPorts: []string{"5432/tcp"},
		HostConfigModifier: func(cfg *container.HostConfig) {
			cfg.PortBindings = nat.PortMap{
				"5432/tcp": []nat.PortBinding{{HostPort: fmt.Sprintf("%d", port)}},
			}
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	if err := waitReady(host, mapped.Port(), 30*time.Second); err != nil {
		t.Fatalf("postgres container not ready: %v", err)
	}

	return postgres.Config{
		Connection: postgres.Connection{
			Host:     host,
			Port:     mapped.Port(),
			User:     user,
			Password: password,
			DbName:   dbName,
			SSLMode:  "disable",
		},
	}
}

// Connect starts a container and returns a migrated client for models.
func Connect(t *testing.T, models ...interface{}) *postgres.Postgres {
	t.Helper()
	cfg := Start(t)

	pg, err := postgres.NewPostgres(cfg, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = pg.GracefulShutdown() })

	if err := pg.Migrate(context.Background(), models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return pg
}

func waitReady(host, port string, timeout time.Duration) error {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbName)
	deadline := time.Now().Add(timeout)
	for {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			err = db.Ping()
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
