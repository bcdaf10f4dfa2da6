package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

const zkSessionTimeout = 10 * time.Second

// ZookeeperProvider loads config from a znode and watches it for changes.
//
// Watches in zookeeper are one-shot, so the watch loop re-arms with GetW
// after every event.
type ZookeeperProvider struct {
	path      string
	endpoints []string

	mu     sync.Mutex
	conn   *zk.Conn
	closed bool
}

// NewZookeeperProvider connects to the given zookeeper ensemble.
func NewZookeeperProvider(endpoints []string, path string) (*ZookeeperProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("zookeeper endpoints are required")
	}
	if path == "" {
		return nil, fmt.Errorf("zookeeper path is required")
	}

	conn, _, err := zk.Connect(endpoints, zkSessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	return &ZookeeperProvider{
		path:      path,
		endpoints: endpoints,
		conn:      conn,
	}, nil
}

// Type returns TypeZookeeper.
func (p *ZookeeperProvider) Type() Type {
	return TypeZookeeper
}

// Load reads the config bytes from the znode.
func (p *ZookeeperProvider) Load(ctx context.Context) ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zookeeper path %s: %w", p.path, err)
	}
	return data, nil
}

// Watch arms a data watch on the znode and signals on every change.
func (p *ZookeeperProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("provider is closed")
	}

	ch := make(chan struct{}, 1)
	go p.watchLoop(ctx, ch)

	slog.Info("Watching zookeeper node", "path", p.path)
	return ch, nil
}

func (p *ZookeeperProvider) watchLoop(ctx context.Context, ch chan<- struct{}) {
	defer close(ch)

	for {
		_, _, eventCh, err := p.conn.GetW(p.path)
		if err != nil {
			slog.Error("Failed to arm zookeeper watch", "path", p.path, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			switch event.Type {
			case zk.EventNodeDataChanged:
				select {
				case ch <- struct{}{}:
				default:
					// change already pending
				}
			case zk.EventNodeDeleted:
				slog.Warn("Zookeeper node was deleted", "path", p.path)
				return
			case zk.EventNotWatching:
				slog.Warn("Zookeeper watch lost", "path", p.path)
				return
			}
		}
	}
}

// Close closes the zookeeper connection.
func (p *ZookeeperProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}

var _ Provider = (*ZookeeperProvider)(nil)
