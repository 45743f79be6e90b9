package device

import (
	"context"
	"errors"
	"time"

	semaphoregroup "github.com/tunnelcore/tunnelcore/util/semaphore-group"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

const (
	// DriverExec shells out to ip and sysctl
	DriverExec = "exec"
	// DriverNetlink talks rtnetlink directly, linux only
	DriverNetlink = "netlink"

	// DefaultCommandTimeout bounds every single device operation
	DefaultCommandTimeout = 10 * time.Second
	// DefaultPoolSize is the number of device operations allowed to run at once
	DefaultPoolSize = 1
)

// Operation names reported to the Observer
const (
	OpUp                = "up"
	OpDown              = "down"
	OpSetAddress        = "set_address"
	OpRemoveAddress     = "remove_address"
	OpAddRoute          = "add_route"
	OpRemoveRoute       = "remove_route"
	OpEnableForwarding  = "enable_forwarding"
	OpDisableForwarding = "disable_forwarding"
)

// Controller applies intents to a tunnel interface. Every call blocks until the OS tooling
// returned. Nothing is idempotent beyond what the OS provides.
type Controller interface {
	Name() string
	Address() string
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	SetAddress(ctx context.Context) error
	RemoveAddress(ctx context.Context) error
	AddRoute(ctx context.Context, cidr string) error
	RemoveRoute(ctx context.Context, cidr string) error
	// EnableForwarding and DisableForwarding change the host wide ipv4 forwarding switch
	EnableForwarding(ctx context.Context) error
	DisableForwarding(ctx context.Context) error
}

// Waiter is implemented by controllers whose operations can outlive the caller's context
type Waiter interface {
	// Wait blocks until every started operation returned or ctx ends
	Wait(ctx context.Context) error
}

// Observer is notified after every device operation
type Observer func(op string, took time.Duration, err error)

// Options tune how device operations are run
type Options struct {
	Timeout  time.Duration
	PoolSize int
	Observer Observer
	// Commander is used by the exec driver, nil means ExecCommander
	Commander Commander
}

// New creates a controller for the named interface using the selected driver
func New(driver, name, address string, opts Options) (Controller, error) {
	switch driver {
	case DriverExec, "":
		return NewCommandDevice(name, address, opts), nil
	case DriverNetlink:
		d, err := NewNetlinkDevice(name, address, opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, status.Errorf(status.InvalidArgument, "unknown device driver %q", driver)
	}
}

type runner struct {
	timeout  time.Duration
	pool     *semaphoregroup.SemaphoreGroup
	observer Observer
}

func newRunner(opts Options) runner {
	r := runner{
		timeout:  opts.Timeout,
		pool:     semaphoregroup.NewSemaphoreGroup(opts.PoolSize),
		observer: opts.Observer,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultCommandTimeout
	}
	if r.observer == nil {
		r.observer = func(string, time.Duration, error) {}
	}
	return r
}

// run executes fn on the pool with the per operation deadline
func (r *runner) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := r.pool.Do(ctx, func() error {
		return fn(ctx)
	})
	took := time.Since(start)

	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = status.Wrap(status.Device, context.DeadlineExceeded, "%s timed out after %s", op, r.timeout)
	case !status.Is(err, status.Device):
		err = status.Wrap(status.Device, err, "%s failed", op)
	}

	r.observer(op, took, err)
	return err
}

// Wait blocks until operations abandoned after a timeout have returned
func (r *runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
