package cmd

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/c-robinson/iplib"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tunnelcore/tunnelcore/encryption"
	"github.com/tunnelcore/tunnelcore/server/config"
	"github.com/tunnelcore/tunnelcore/shared/status"
)

type addPeerOptions struct {
	ServerConfigPath string
	ClientConfigPath string
	PublicKey        string
	AllowedIPs       string
	Endpoint         string
	ServerEndpoint   string
	ClientAddress    string
	DNS              []string
	WithPSK          bool
}

var (
	addPeerOpts = addPeerOptions{}

	addPeerCmd = &cobra.Command{
		Use:   "add-peer",
		Short: "add remote peer",
		Long: "Appends a peer to the server configuration. Without --key a client keypair is generated " +
			"and a matching client configuration is written to --client-config",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := addPeerOpts
			opts.ServerConfigPath = configPath

			added, err := addPeer(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Peer %s added to %s\n", added.PublicKey, opts.ServerConfigPath)
			fmt.Fprintf(out, "AllowedIPs = %q\n", added.AllowedIPs)
			if added.PSK != nil {
				// the remote side needs it, it is stored only in the server config otherwise
				fmt.Fprintf(out, "PresharedKey = %q\n", *added.PSK)
			}
			if added.Client != nil {
				fmt.Fprintf(out, "Client configuration written to %s\n", opts.ClientConfigPath)
			}
			return nil
		},
	}
)

func init() {
	addPeerCmd.Flags().StringVar(&addPeerOpts.PublicKey, "key", "", "public key of the remote peer, generated when empty")
	addPeerCmd.Flags().StringVar(&addPeerOpts.AllowedIPs, "allowed-ips", "", "allowed IPs for the remote peer, e.g 10.8.0.2/32. Defaults to the next free address of the interface network")
	addPeerCmd.Flags().StringVar(&addPeerOpts.Endpoint, "endpoint", "", "optional ip:port of the remote peer")
	addPeerCmd.Flags().BoolVar(&addPeerOpts.WithPSK, "psk", false, "generate a preshared key for the peer")
	addPeerCmd.Flags().StringVar(&addPeerOpts.ClientConfigPath, "client-config", "", "write a client configuration for the new peer to this path")
	addPeerCmd.Flags().StringVar(&addPeerOpts.ServerEndpoint, "server-endpoint", "", "host:port clients use to reach this server")
	addPeerCmd.Flags().StringVar(&addPeerOpts.ClientAddress, "client-address", "", "client interface address, defaults to --allowed-ips")
	addPeerCmd.Flags().StringSliceVar(&addPeerOpts.DNS, "dns", nil, "DNS servers for the client configuration")
}

// addedPeer describes the peer appended by addPeer
type addedPeer struct {
	PublicKey  string
	AllowedIPs string
	PSK        *string
	// Client is set when a client configuration was written
	Client *config.ClientConfig
}

// addPeer updates the server configuration and optionally writes the client side
func addPeer(ctx context.Context, opts addPeerOptions) (*addedPeer, error) {
	if opts.AllowedIPs != "" {
		if _, err := netip.ParsePrefix(opts.AllowedIPs); err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "invalid allowed IPs %q", opts.AllowedIPs)
		}
	}
	if opts.Endpoint != "" {
		if _, err := netip.ParseAddrPort(opts.Endpoint); err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "invalid endpoint %q", opts.Endpoint)
		}
	}

	if opts.ClientConfigPath != "" {
		if opts.PublicKey != "" {
			return nil, status.Errorf(status.InvalidArgument, "a client configuration needs a generated keypair, omit --key")
		}
		if opts.ServerEndpoint == "" {
			return nil, status.Errorf(status.InvalidArgument, "--server-endpoint is required for a client configuration")
		}
	}

	serverCfg, err := config.LoadServerConfig(opts.ServerConfigPath)
	if err != nil {
		return nil, err
	}

	var clientPriv string
	pub := opts.PublicKey
	if pub == "" {
		if opts.ClientConfigPath == "" {
			return nil, status.Errorf(status.InvalidArgument, "--client-config is required when no --key is given")
		}
		clientPriv, pub, err = encryption.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		log.Infof("generated client keypair, public key %s", pub)
	} else if _, err := encryption.DecodePublicKey(pub); err != nil {
		return nil, err
	}

	for _, p := range serverCfg.Peers {
		if p.PublicKey == pub {
			return nil, status.Errorf(status.InvalidArgument, "peer %s already exists", encryption.ShortKey(pub))
		}
	}

	if opts.AllowedIPs == "" {
		opts.AllowedIPs, err = nextFreeAddress(serverCfg)
		if err != nil {
			return nil, err
		}
		log.Infof("assigned %s to peer %s", opts.AllowedIPs, encryption.ShortKey(pub))
	}

	peerCfg := config.PeerConfig{
		PublicKey:  pub,
		AllowedIPs: opts.AllowedIPs,
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		peerCfg.Endpoint = &endpoint
	}
	if opts.WithPSK {
		psk, err := encryption.GeneratePresharedKey()
		if err != nil {
			return nil, err
		}
		peerCfg.PSK = &psk
	}

	added := &addedPeer{
		PublicKey:  pub,
		AllowedIPs: peerCfg.AllowedIPs,
		PSK:        peerCfg.PSK,
	}
	if opts.ClientConfigPath != "" {
		added.Client, err = clientConfigFor(serverCfg, peerCfg, clientPriv, opts)
		if err != nil {
			return nil, err
		}
	}

	serverCfg.Peers = append(serverCfg.Peers, peerCfg)
	if err := config.SaveServerConfig(ctx, opts.ServerConfigPath, serverCfg); err != nil {
		return nil, err
	}

	if added.Client != nil {
		if err := config.SaveClientConfig(ctx, opts.ClientConfigPath, added.Client); err != nil {
			return nil, err
		}
	}

	return added, nil
}

// nextFreeAddress returns the first host /32 of the interface network that is neither the
// interface address nor the first address of a peer's allowed IPs
func nextFreeAddress(cfg *config.ServerConfig) (string, error) {
	ifaceIP, ipNet, err := iplib.ParseCIDR(cfg.Interface.Address)
	if err != nil {
		return "", status.Wrap(status.Config, err, "invalid interface address %q", cfg.Interface.Address)
	}
	network, ok := ipNet.(iplib.Net4)
	if !ok {
		return "", status.Errorf(status.InvalidArgument, "no automatic allowed IPs for %s, pass --allowed-ips", cfg.Interface.Address)
	}

	used := map[string]bool{ifaceIP.String(): true}
	for _, p := range cfg.Peers {
		if ip, _, err := iplib.ParseCIDR(p.AllowedIPs); err == nil {
			used[ip.String()] = true
		}
	}

	candidate := network.FirstAddress()
	for i := uint32(0); i < network.Count(); i++ {
		if !used[candidate.String()] {
			return candidate.String() + "/32", nil
		}
		candidate, err = network.NextIP(candidate)
		if err != nil {
			break
		}
	}
	return "", status.Errorf(status.InvalidArgument, "no free address left in %s", network.String())
}

func clientConfigFor(serverCfg *config.ServerConfig, peerCfg config.PeerConfig, clientPriv string, opts addPeerOptions) (*config.ClientConfig, error) {
	serverPub, err := encryption.DerivePublicKey(serverCfg.Interface.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("server private key: %w", err)
	}

	address := opts.ClientAddress
	if address == "" {
		address = opts.AllowedIPs
	}

	return &config.ClientConfig{
		PrivateKey:      clientPriv,
		Address:         address,
		ServerPublicKey: serverPub,
		ServerEndpoint:  opts.ServerEndpoint,
		PSK:             peerCfg.PSK,
		DNS:             opts.DNS,
	}, nil
}
