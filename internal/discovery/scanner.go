// Package discovery finds POS servers on the local network by probing the
// health endpoint of candidate addresses.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/pos-waiter/internal/logging"
	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/posapi"
	"github.com/iliyamo/pos-waiter/internal/transport"
)

var (
	// ErrInvalidAddress is returned by Manual for a malformed IP or port.
	ErrInvalidAddress = errors.New("discovery: invalid IP address or port")
	// ErrNotReachable is returned by Manual when the health probe fails.
	ErrNotReachable = errors.New("discovery: server did not answer the health check")
)

// Prober checks whether a POS server answers at ip:port.
type Prober interface {
	Probe(ctx context.Context, ip string, port int) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, ip string, port int) bool

func (f ProberFunc) Probe(ctx context.Context, ip string, port int) bool { return f(ctx, ip, port) }

// HealthProber probes GET /health through a detached copy of Client, so the
// shared bound address is never touched while scanning.
type HealthProber struct {
	Client  *transport.Client
	Timeout time.Duration
}

func (p HealthProber) Probe(ctx context.Context, ip string, port int) bool {
	b := model.NewBinding(ip, port)
	return posapi.CheckHealth(ctx, p.Client.Detached(b.BaseURL()), p.Timeout)
}

// Options tune a Scanner.  Zero values take the defaults in parentheses.
type Options struct {
	Port      int           // probed port (4000)
	BatchSize int           // concurrent probes per batch (5)
	Pause     time.Duration // pause between batches (50ms)
	Timeout   time.Duration // whole scan; 0 disables the cap
	Logger    *slog.Logger
	// OnFound is called for each server as soon as its batch settles.
	OnFound func(model.ServerBinding)
}

// Scanner walks candidate subnets in batches of concurrent probes.
type Scanner struct {
	prober  Prober
	subnets SubnetSource
	opts    Options
}

// NewScanner returns a scanner.  A nil subnets source uses LocalSubnets.
func NewScanner(p Prober, subnets SubnetSource, opts Options) *Scanner {
	if subnets == nil {
		subnets = LocalSubnets
	}
	if opts.Port == 0 {
		opts.Port = model.DefaultPort
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.Pause <= 0 {
		opts.Pause = 50 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Scanner{prober: p, subnets: subnets, opts: opts}
}

// Scan probes each subnet in turn and stops at the first one that yields a
// server.  An empty result with a nil error means no server was found.  When
// the scan deadline passes Scan returns what it found so far; cancellation of
// ctx by the caller is returned as an error.
func (s *Scanner) Scan(ctx context.Context) ([]model.ServerBinding, error) {
	sctx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	for _, subnet := range s.subnets() {
		s.opts.Logger.Debug("scanning subnet", "subnet", subnet+".0/24")
		found := s.scanSubnet(sctx, subnet)
		if len(found) > 0 {
			s.opts.Logger.Info("discovery finished", "found", len(found), "elapsed", time.Since(started))
			return found, nil
		}
		if sctx.Err() != nil {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sctx.Err() != nil {
		s.opts.Logger.Warn("discovery deadline reached", "timeout", s.opts.Timeout)
	}
	return []model.ServerBinding{}, nil
}

// scanSubnet probes one /24 batch by batch.  Every probe of a batch settles
// before the next batch starts; the first batch with a hit ends the subnet.
func (s *Scanner) scanSubnet(ctx context.Context, subnet string) []model.ServerBinding {
	hosts := HostOrder()
	for start := 0; start < len(hosts); start += s.opts.BatchSize {
		if ctx.Err() != nil {
			return nil
		}
		end := min(start+s.opts.BatchSize, len(hosts))
		batch := hosts[start:end]
		hits := make([]bool, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.BatchSize)
		for i, h := range batch {
			i := i
			ip := subnet + "." + strconv.Itoa(h)
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				hits[i] = s.prober.Probe(gctx, ip, s.opts.Port)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			s.opts.Logger.Debug("batch cut short", "subnet", subnet, "error", err)
		}

		var found []model.ServerBinding
		for i, ok := range hits {
			if !ok {
				continue
			}
			b := model.NewBinding(fmt.Sprintf("%s.%d", subnet, batch[i]), s.opts.Port)
			s.opts.Logger.Info("server found", "address", b.Address())
			if s.opts.OnFound != nil {
				s.opts.OnFound(b)
			}
			found = append(found, b)
		}
		if len(found) > 0 {
			return found
		}

		if end < len(hosts) {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.opts.Pause):
			}
		}
	}
	return nil
}

// Manual validates ip and port, probes once and returns the binding.
func (s *Scanner) Manual(ctx context.Context, ip string, port int) (model.ServerBinding, error) {
	addr, ok := model.ParseIPv4(ip)
	if !ok || !model.ValidPort(port) {
		return model.ServerBinding{}, fmt.Errorf("%w: %q:%d", ErrInvalidAddress, ip, port)
	}
	if !s.prober.Probe(ctx, addr, port) {
		return model.ServerBinding{}, fmt.Errorf("%w: %s:%d", ErrNotReachable, addr, port)
	}
	return model.NewBinding(addr, port), nil
}
