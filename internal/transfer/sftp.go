// Package transfer moves carrier files over SFTP: tracking feeds are pulled
// into a local inbox and manifests are pushed to the exchange server.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds the exchange server credentials.
type Config struct {
	Addr           string // host:port
	User           string
	Password       string
	KnownHostsFile string // empty accepts any host key
	Timeout        time.Duration
}

// Client opens one SFTP session per operation.
type Client struct {
	cfg     Config
	logger  *otelzap.Logger
	connect func(ctx context.Context) (*sftp.Client, io.Closer, error)
}

// New creates a client for the server in cfg.
func New(cfg Config, logger *otelzap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := &Client{cfg: cfg, logger: logger}
	c.connect = c.dial
	return c
}

func (c *Client) dial(ctx context.Context) (*sftp.Client, io.Closer, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if c.cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(c.cfg.KnownHostsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	}

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.cfg.Addr, &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(c.cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         c.cfg.Timeout,
	})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("open sftp session: %w", err)
	}
	return client, sshClient, nil
}

func (c *Client) session(ctx context.Context, fn func(client *sftp.Client) error) error {
	client, closer, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		client.Close()
		if closer != nil {
			closer.Close()
		}
	}()
	return fn(client)
}

// Download copies every regular file of remoteDir into localDir and returns
// the local paths. With remove set, copied files are deleted remotely.
func (c *Client) Download(ctx context.Context, remoteDir, localDir string, remove bool) ([]string, error) {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}

	var local []string
	err := c.session(ctx, func(client *sftp.Client) error {
		entries, err := client.ReadDir(remoteDir)
		if err != nil {
			return fmt.Errorf("list %s: %w", remoteDir, err)
		}
		for _, e := range entries {
			if !e.Mode().IsRegular() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			remote := path.Join(remoteDir, e.Name())
			dst := filepath.Join(localDir, e.Name())
			if err := copyFrom(client, remote, dst); err != nil {
				return err
			}
			local = append(local, dst)
			c.logger.Info("Feed file downloaded", zap.String("remote", remote), zap.String("local", dst))

			if remove {
				if err := client.Remove(remote); err != nil {
					return fmt.Errorf("remove %s: %w", remote, err)
				}
			}
		}
		return nil
	})
	return local, err
}

// Upload writes data to remotePath, creating parent directories.
func (c *Client) Upload(ctx context.Context, remotePath string, data []byte) error {
	return c.session(ctx, func(client *sftp.Client) error {
		if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
			return fmt.Errorf("create %s: %w", path.Dir(remotePath), err)
		}
		f, err := client.Create(remotePath)
		if err != nil {
			return fmt.Errorf("create %s: %w", remotePath, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", remotePath, err)
		}
		return f.Close()
	})
}

func copyFrom(client *sftp.Client, remote, dst string) error {
	src, err := client.Open(remote)
	if err != nil {
		return fmt.Errorf("open %s: %w", remote, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", remote, err)
	}
	return out.Close()
}
