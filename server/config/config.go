package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/c-robinson/iplib"
	"github.com/pelletier/go-toml/v2"

	"github.com/tunnelcore/tunnelcore/shared/status"
	"github.com/tunnelcore/tunnelcore/util"
)

const (
	// DefaultInterfaceName is used by generated configurations
	DefaultInterfaceName = "wg0"
	// DefaultListenPort is used by generated configurations
	DefaultListenPort uint16 = 51820
	// DefaultAddress is used by generated configurations
	DefaultAddress = "10.8.0.1/24"
)

// InterfaceConfig describes the local tunnel device. It doesn't change while a server runs.
type InterfaceConfig struct {
	Name       string `toml:"name"`
	PrivateKey string `toml:"private_key"`
	// Address is in CIDR notation, e.g. 10.8.0.1/24
	Address    string `toml:"address"`
	ListenPort uint16 `toml:"listen_port"`
}

// PeerConfig describes one remote peer. Keys are not decoded here.
type PeerConfig struct {
	PublicKey string `toml:"public_key"`
	// AllowedIPs holds a single CIDR range routed to the peer
	AllowedIPs string  `toml:"allowed_ips"`
	Endpoint   *string `toml:"endpoint,omitempty"`
	PSK        *string `toml:"psk,omitempty"`
}

// ServerConfig is the server configuration file. Peers keep file order.
type ServerConfig struct {
	Interface InterfaceConfig `toml:"interface"`
	Peers     []PeerConfig    `toml:"peers"`
}

// ClientConfig is the flat client configuration file
type ClientConfig struct {
	PrivateKey      string   `toml:"private_key"`
	Address         string   `toml:"address"`
	ServerPublicKey string   `toml:"server_public_key"`
	ServerEndpoint  string   `toml:"server_endpoint"`
	PSK             *string  `toml:"psk,omitempty"`
	DNS             []string `toml:"dns"`
}

// Validate checks that every required field is present and that addresses are CIDR ranges
func (c *ServerConfig) Validate() error {
	var missing []string
	if c.Interface.Name == "" {
		missing = append(missing, "interface.name")
	}
	if c.Interface.PrivateKey == "" {
		missing = append(missing, "interface.private_key")
	}
	if c.Interface.Address == "" {
		missing = append(missing, "interface.address")
	}
	for i, p := range c.Peers {
		if p.PublicKey == "" {
			missing = append(missing, fmt.Sprintf("peers[%d].public_key", i))
		}
		if p.AllowedIPs == "" {
			missing = append(missing, fmt.Sprintf("peers[%d].allowed_ips", i))
		}
	}
	if len(missing) > 0 {
		return status.Errorf(status.Config, "missing required field(s): %s", strings.Join(missing, ", "))
	}

	if err := checkCIDR("interface.address", c.Interface.Address); err != nil {
		return err
	}
	for i, p := range c.Peers {
		if err := checkCIDR(fmt.Sprintf("peers[%d].allowed_ips", i), p.AllowedIPs); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that every required field is present
func (c *ClientConfig) Validate() error {
	var missing []string
	if c.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if c.Address == "" {
		missing = append(missing, "address")
	}
	if c.ServerPublicKey == "" {
		missing = append(missing, "server_public_key")
	}
	if c.ServerEndpoint == "" {
		missing = append(missing, "server_endpoint")
	}
	if len(missing) > 0 {
		return status.Errorf(status.Config, "missing required field(s): %s", strings.Join(missing, ", "))
	}

	return checkCIDR("address", c.Address)
}

func checkCIDR(field, value string) error {
	if _, _, err := iplib.ParseCIDR(value); err != nil {
		return status.Wrap(status.Config, err, "%s is not a CIDR range: %q", field, value)
	}
	return nil
}

// serverDocument is the on-disk layout of a ServerConfig. A nil Peers leaves the key out,
// an empty one is written as peers = [].
type serverDocument struct {
	Interface InterfaceConfig `toml:"interface"`
	Peers     any             `toml:"peers,omitempty"`
}

// clientDocument is the on-disk layout of a ClientConfig, DNS behaves like serverDocument.Peers
type clientDocument struct {
	PrivateKey      string  `toml:"private_key"`
	Address         string  `toml:"address"`
	ServerPublicKey string  `toml:"server_public_key"`
	ServerEndpoint  string  `toml:"server_endpoint"`
	PSK             *string `toml:"psk,omitempty"`
	DNS             any     `toml:"dns,omitempty"`
}

// serverPresence catches required keys whose zero value is valid
type serverPresence struct {
	Interface struct {
		ListenPort *uint16 `toml:"listen_port"`
	} `toml:"interface"`
}

// LoadServerConfig reads and parses a server configuration file. Nothing is cached.
func LoadServerConfig(path string) (*ServerConfig, error) {
	bs, err := read(path)
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{}
	if err := decode(path, bs, cfg); err != nil {
		return nil, err
	}

	var presence serverPresence
	if err := decode(path, bs, &presence); err != nil {
		return nil, err
	}
	if presence.Interface.ListenPort == nil {
		return nil, status.Errorf(status.Config, "missing required field(s): interface.listen_port")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientConfig reads and parses a client configuration file. Nothing is cached.
func LoadClientConfig(path string) (*ClientConfig, error) {
	bs, err := read(path)
	if err != nil {
		return nil, err
	}

	cfg := &ClientConfig{}
	if err := decode(path, bs, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveServerConfig writes the configuration as TOML, replacing the file as a whole
func SaveServerConfig(ctx context.Context, path string, cfg *ServerConfig) error {
	doc := serverDocument{Interface: cfg.Interface}
	if cfg.Peers != nil {
		doc.Peers = cfg.Peers
	}
	return save(ctx, path, doc)
}

// SaveClientConfig writes the configuration as TOML, replacing the file as a whole
func SaveClientConfig(ctx context.Context, path string, cfg *ClientConfig) error {
	doc := clientDocument{
		PrivateKey:      cfg.PrivateKey,
		Address:         cfg.Address,
		ServerPublicKey: cfg.ServerPublicKey,
		ServerEndpoint:  cfg.ServerEndpoint,
		PSK:             cfg.PSK,
	}
	if cfg.DNS != nil {
		doc.DNS = cfg.DNS
	}
	return save(ctx, path, doc)
}

func read(path string) ([]byte, error) {
	bs, err := util.ReadFileLimited(path)
	if err != nil {
		return nil, status.Wrap(status.Config, err, "failed to read config file")
	}
	return bs, nil
}

func decode(path string, bs []byte, cfg any) error {
	if err := toml.Unmarshal(bs, cfg); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return status.Wrap(status.Config, err, "failed to parse config %s at line %d column %d", path, row, col)
		}
		return status.Wrap(status.Config, err, "failed to parse config %s", path)
	}
	return nil
}

func save(ctx context.Context, path string, doc any) error {
	bs, err := toml.Marshal(doc)
	if err != nil {
		return status.Wrap(status.Config, err, "failed to serialize config")
	}

	if err := util.WriteBytesWithRestrictedPermission(ctx, path, bs); err != nil {
		return status.Wrap(status.Config, err, "failed to write config file")
	}
	return nil
}
