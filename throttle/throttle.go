// Package throttle paces compaction writes so background work does not starve
// foreground traffic.
package throttle

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Controller meters the bytes a compaction operation produces. Control blocks
// until the operation may proceed; a non-nil error means the wait was
// interrupted and the operation should stop.
type Controller interface {
	Start(opName string)
	Control(ctx context.Context, opName string, bytes int64) error
	Finish(opName string)
}

// Unlimited is a Controller that never blocks.
type Unlimited struct{}

var _ Controller = (*Unlimited)(nil)

func NewUnlimited() *Unlimited { return &Unlimited{} }

func (*Unlimited) Start(string) {}
func (*Unlimited) Control(context.Context, string, int64) error { return nil }
func (*Unlimited) Finish(string) {}

// RateLimited enforces a global bytes-per-second ceiling shared by all
// registered operations.
type RateLimited struct {
	limiter *rate.Limiter
	burst   int

	mu     sync.Mutex
	active map[string]struct{}
}

var _ Controller = (*RateLimited)(nil)

// NewRateLimited creates a controller that admits at most bytesPerSecond
// across all concurrent operations. bytesPerSecond must be positive.
func NewRateLimited(bytesPerSecond int64) (*RateLimited, error) {
	if bytesPerSecond <= 0 {
		return nil, fmt.Errorf("throttle: bytes per second must be positive, got %d", bytesPerSecond)
	}
	burst := int(bytesPerSecond)
	return &RateLimited{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst:   burst,
		active:  make(map[string]struct{}),
	}, nil
}

func (r *RateLimited) Start(opName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[opName] = struct{}{}
}

// Control waits until bytes may be written. Requests larger than the burst
// are split so a single oversized write cannot defeat the limiter.
func (r *RateLimited) Control(ctx context.Context, opName string, bytes int64) error {
	for bytes > 0 {
		n := bytes
		if n > int64(r.burst) {
			n = int64(r.burst)
		}
		if err := r.limiter.WaitN(ctx, int(n)); err != nil {
			return fmt.Errorf("throttle: wait interrupted for %q: %w", opName, err)
		}
		bytes -= n
	}
	return nil
}

func (r *RateLimited) Finish(opName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, opName)
}

// ActiveOperations reports the operations currently registered with the
// controller.
func (r *RateLimited) ActiveOperations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	return names
}
