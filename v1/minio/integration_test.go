package minio

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/mock/gomock"

	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
)

func createMinIOContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	req := testcontainers.ContainerRequest{
		Image: "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		Cmd:   []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minio_admin",
			"MINIO_ROOT_PASSWORD": "minio_admin",
		},
		ExposedPorts: []string{"9000/tcp"},
		HostConfigModifier: func(cfg *container.HostConfig) {
			cfg.PortBindings = nat.PortMap{
				"9000/tcp": []nat.PortBinding{{HostPort: fmt.Sprintf("%d", port)}},
			}
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("9000/tcp").WithStartupTimeout(30*time.Second),
			wait.ForHTTP("/minio/health/ready").WithPort("9000/tcp").WithStartupTimeout(30*time.Second),
		),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start minio container")
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	return fmt.Sprintf("%s:%d", host, port)
}

func TestMinioArchive(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	endpoint := createMinIOContainer(ctx, t)

	ctrl := gomock.NewController(t)
	log := NewMockLogger(ctrl)
	log.EXPECT().InfoWithContext(gomock.Any(), "Bucket does not exist, creating it", nil, gomock.Any()).Times(1)
	log.EXPECT().InfoWithContext(gomock.Any(), "Connected to MinIO", nil, gomock.Any()).Times(1)
	log.EXPECT().WarnWithContext(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()

	var archive clustering.Archive
	var client *MinioClient
	app := fxtest.New(t,
		FXModule,
		fx.Provide(
			func() Config {
				return Config{Connection: ConnectionConfig{
					Endpoint:             endpoint,
					AccessKeyID:          "minio_admin",
					SecretAccessKey:      "minio_admin",
					BucketName:           "it-runs",
					AccessBucketCreation: true,
				}}
			},
			func() Logger { return log },
		),
		fx.Populate(&archive, &client),
	)
	app.RequireStart()
	defer app.RequireStop()

	key := clustering.SnapshotKey("density", "run-1")

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, archive.Put(ctx, key, []byte(`{"nodes":[]}`), "application/json"))
		got, err := archive.Get(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"nodes":[]}`, string(got))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, archive.Put(ctx, key, []byte(`{"nodes":[1]}`), "application/json"))
		got, err := archive.Get(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"nodes":[1]}`, string(got))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := archive.Get(ctx, "runs/density/none.json")
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, client.Delete(ctx, key))
		_, err := client.Get(ctx, key)
		assert.ErrorIs(t, err, ErrObjectNotFound)
		require.NoError(t, client.Delete(ctx, key))
	})
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(Config{}, nil, nil)
	assert.ErrorContains(t, err, "endpoint cannot be empty")
}
