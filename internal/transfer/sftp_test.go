package transfer

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// newInMemoryClient wires a Client to an in-memory SFTP server that keeps
// its files across sessions.
func newInMemoryClient(t *testing.T) (*Client, func() *sftp.Client) {
	t.Helper()
	handlers := sftp.InMemHandler()

	open := func() *sftp.Client {
		serverConn, clientConn := net.Pipe()
		server := sftp.NewRequestServer(serverConn, handlers)
		go func() { _ = server.Serve() }()
		client, err := sftp.NewClientPipe(clientConn, clientConn)
		require.NoError(t, err)
		return client
	}

	c := New(Config{Addr: "in-memory"}, otelzap.New(zap.NewNop()))
	c.connect = func(ctx context.Context) (*sftp.Client, io.Closer, error) {
		return open(), nil, nil
	}
	return c, open
}

func TestClient_UploadThenDownload(t *testing.T) {
	c, _ := newInMemoryClient(t)
	ctx := context.Background()
	inbox := t.TempDir()

	require.NoError(t, c.Upload(ctx, "/carriers/aramex/tracking_numbers/feed-1.csv", []byte("AWB\n1\n")))

	paths, err := c.Download(ctx, "/carriers/aramex/tracking_numbers", inbox, false)

	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(inbox, "feed-1.csv")}, paths)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "AWB\n1\n", string(data))

	again, err := c.Download(ctx, "/carriers/aramex/tracking_numbers", t.TempDir(), false)
	require.NoError(t, err)
	assert.Len(t, again, 1, "files stay remote without remove")
}

func TestClient_DownloadRemoves(t *testing.T) {
	c, open := newInMemoryClient(t)
	ctx := context.Background()

	require.NoError(t, c.Upload(ctx, "/feed/a.csv", []byte("a")))
	require.NoError(t, c.Upload(ctx, "/feed/b.csv", []byte("b")))

	paths, err := c.Download(ctx, "/feed", t.TempDir(), true)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	client := open()
	defer client.Close()
	entries, err := client.ReadDir("/feed")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClient_DownloadMissingDir(t *testing.T) {
	c, _ := newInMemoryClient(t)

	_, err := c.Download(context.Background(), "/nowhere", t.TempDir(), false)

	assert.Error(t, err)
}
