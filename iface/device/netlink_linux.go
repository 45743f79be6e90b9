//go:build linux && !android

package device

import (
	"context"
	"net"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"

	"github.com/tunnelcore/tunnelcore/shared/status"
)

const ipv4ForwardingPath = "/proc/sys/net/ipv4/ip_forward"

// NetlinkDevice drives the interface over rtnetlink without spawning processes
type NetlinkDevice struct {
	runner
	name    string
	address string
}

// NewNetlinkDevice creates a netlink driver. The interface is not touched.
func NewNetlinkDevice(name, address string, opts Options) (*NetlinkDevice, error) {
	if _, err := netlink.ParseAddr(address); err != nil {
		return nil, status.Wrap(status.InvalidArgument, err, "invalid interface address %q", address)
	}
	d := &NetlinkDevice{
		runner:  newRunner(opts),
		name:    name,
		address: address,
	}
	log.Debugf("%s driver for %s: %d concurrent operation(s), timeout %s", DriverNetlink, name, d.pool.Limit(), d.timeout)
	return d, nil
}

func (d *NetlinkDevice) Name() string {
	return d.name
}

func (d *NetlinkDevice) Address() string {
	return d.address
}

func (d *NetlinkDevice) Up(ctx context.Context) error {
	return d.withLink(ctx, OpUp, netlink.LinkSetUp)
}

func (d *NetlinkDevice) Down(ctx context.Context) error {
	return d.withLink(ctx, OpDown, netlink.LinkSetDown)
}

func (d *NetlinkDevice) SetAddress(ctx context.Context) error {
	return d.withLink(ctx, OpSetAddress, func(link netlink.Link) error {
		addr, err := netlink.ParseAddr(d.address)
		if err != nil {
			return err
		}
		log.Debugf("adding address %s to interface: %s", d.address, d.name)
		return netlink.AddrAdd(link, addr)
	})
}

func (d *NetlinkDevice) RemoveAddress(ctx context.Context) error {
	return d.withLink(ctx, OpRemoveAddress, func(link netlink.Link) error {
		addr, err := netlink.ParseAddr(d.address)
		if err != nil {
			return err
		}
		return netlink.AddrDel(link, addr)
	})
}

func (d *NetlinkDevice) AddRoute(ctx context.Context, cidr string) error {
	return d.withLink(ctx, OpAddRoute, func(link netlink.Link) error {
		route, err := linkRoute(link, cidr)
		if err != nil {
			return err
		}
		return netlink.RouteAdd(route)
	})
}

func (d *NetlinkDevice) RemoveRoute(ctx context.Context, cidr string) error {
	return d.withLink(ctx, OpRemoveRoute, func(link netlink.Link) error {
		route, err := linkRoute(link, cidr)
		if err != nil {
			return err
		}
		return netlink.RouteDel(route)
	})
}

func (d *NetlinkDevice) EnableForwarding(ctx context.Context) error {
	return d.run(ctx, OpEnableForwarding, func(context.Context) error {
		bytes, err := os.ReadFile(ipv4ForwardingPath)
		if err != nil {
			return err
		}

		// already enabled
		if len(bytes) > 0 && bytes[0] == '1' {
			return nil
		}

		return os.WriteFile(ipv4ForwardingPath, []byte("1"), 0644)
	})
}

func (d *NetlinkDevice) DisableForwarding(ctx context.Context) error {
	return d.run(ctx, OpDisableForwarding, func(context.Context) error {
		return os.WriteFile(ipv4ForwardingPath, []byte("0"), 0644)
	})
}

func (d *NetlinkDevice) withLink(ctx context.Context, op string, fn func(netlink.Link) error) error {
	return d.run(ctx, op, func(context.Context) error {
		link, err := netlink.LinkByName(d.name)
		if err != nil {
			return status.Wrap(status.Device, err, "interface %s", d.name)
		}
		if err := fn(link); err != nil {
			return status.Wrap(status.Device, err, "%s on interface %s", op, d.name)
		}
		return nil
	})
}

func linkRoute(link netlink.Link, cidr string) (*netlink.Route, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	return &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Scope:     netlink.SCOPE_LINK,
		Dst:       ipNet,
	}, nil
}
