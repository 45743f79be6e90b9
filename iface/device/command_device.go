package device

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

// CommandDevice drives the interface with the ip and sysctl tools
type CommandDevice struct {
	runner
	name    string
	address string
	cmd     Commander
}

// NewCommandDevice creates an exec driver. The interface is not touched.
func NewCommandDevice(name, address string, opts Options) *CommandDevice {
	cmd := opts.Commander
	if cmd == nil {
		cmd = ExecCommander{}
	}
	d := &CommandDevice{
		runner:  newRunner(opts),
		name:    name,
		address: address,
		cmd:     cmd,
	}
	log.Debugf("%s driver for %s: %d concurrent operation(s), timeout %s", DriverExec, name, d.pool.Limit(), d.timeout)
	return d
}

func (d *CommandDevice) Name() string {
	return d.name
}

func (d *CommandDevice) Address() string {
	return d.address
}

func (d *CommandDevice) Up(ctx context.Context) error {
	return d.exec(ctx, OpUp, "ip", "link", "set", "dev", d.name, "up")
}

func (d *CommandDevice) Down(ctx context.Context) error {
	return d.exec(ctx, OpDown, "ip", "link", "set", "dev", d.name, "down")
}

func (d *CommandDevice) SetAddress(ctx context.Context) error {
	return d.exec(ctx, OpSetAddress, "ip", "addr", "add", d.address, "dev", d.name)
}

func (d *CommandDevice) RemoveAddress(ctx context.Context) error {
	return d.exec(ctx, OpRemoveAddress, "ip", "addr", "del", d.address, "dev", d.name)
}

func (d *CommandDevice) AddRoute(ctx context.Context, cidr string) error {
	return d.exec(ctx, OpAddRoute, "ip", "route", "add", cidr, "dev", d.name)
}

func (d *CommandDevice) RemoveRoute(ctx context.Context, cidr string) error {
	return d.exec(ctx, OpRemoveRoute, "ip", "route", "del", cidr, "dev", d.name)
}

func (d *CommandDevice) EnableForwarding(ctx context.Context) error {
	return d.exec(ctx, OpEnableForwarding, "sysctl", "-w", "net.ipv4.ip_forward=1")
}

func (d *CommandDevice) DisableForwarding(ctx context.Context) error {
	return d.exec(ctx, OpDisableForwarding, "sysctl", "-w", "net.ipv4.ip_forward=0")
}

func (d *CommandDevice) exec(ctx context.Context, op string, name string, args ...string) error {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	return d.run(ctx, op, func(ctx context.Context) error {
		out, err := d.cmd.CombinedOutput(ctx, name, args...)
		if err != nil {
			log.Debugf("%s output: %s", cmdline, out)
			return status.Wrap(status.Device, err, "command %q failed: %s", cmdline, diagnostic(out))
		}
		log.Tracef("%s: ok", cmdline)
		return nil
	})
}

func diagnostic(out []byte) string {
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		return "no output"
	}
	return fmt.Sprintf("%q", msg)
}
