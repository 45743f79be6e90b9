package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tunnelcore/tunnelcore/encryption"
	mgmt "github.com/tunnelcore/tunnelcore/server/http"
	"github.com/tunnelcore/tunnelcore/server/peer"
	"github.com/tunnelcore/tunnelcore/shared/status"
	"github.com/tunnelcore/tunnelcore/version"
)

var (
	managementAddr string
	retryWindow    time.Duration
	jsonFlag       bool

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "show peers and traffic of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := mgmt.NewClient(managementAddr, retryWindow)

			peers, err := client.Peers(cmd.Context())
			if err != nil {
				return describeClientError(err)
			}
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return describeClientError(err)
			}
			checkServerVersion(client)

			if jsonFlag {
				return printJSON(cmd.OutOrStdout(), statusOutput{Peers: peers, Stats: stats})
			}
			printStatus(cmd.OutOrStdout(), peers, stats)
			return nil
		},
	}

	setStatusCmd = &cobra.Command{
		Use:   "set <public-key> <disconnected|handshaking|connected>",
		Short: "change the status of a peer on a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := peer.ParseConnStatus(args[1])
			if err != nil {
				return err
			}

			client := mgmt.NewClient(managementAddr, retryWindow)
			p, err := client.SetPeerStatus(cmd.Context(), args[0], s)
			if err != nil {
				return describeClientError(err)
			}
			checkServerVersion(client)

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", encryption.ShortKey(p.PublicKey), p.Status)
			return nil
		},
	}
)

type statusOutput struct {
	Peers []mgmt.PeerResponse `json:"peers"`
	Stats peer.Stats          `json:"stats"`
}

func init() {
	statusCmd.PersistentFlags().StringVar(&managementAddr, "management-addr", defaultManagementAddr, "management endpoint of the running server")
	statusCmd.PersistentFlags().DurationVar(&retryWindow, "retry-window", mgmt.DefaultRetryWindow, "how long to retry an unreachable management endpoint")
	statusCmd.Flags().BoolVar(&jsonFlag, "json", false, "display status in JSON format")
	statusCmd.AddCommand(setStatusCmd)
}

// describeClientError keeps not found and unreachable apart for the user
func describeClientError(err error) error {
	switch {
	case status.Is(err, status.NotFound):
		return fmt.Errorf("peer not found: %w", err)
	case status.Is(err, status.Network):
		return fmt.Errorf("management endpoint %s unreachable, is the server running? %w", managementAddr, err)
	default:
		return err
	}
}

func checkServerVersion(client *mgmt.Client) {
	if v := client.ServerVersion(); v != "" && !version.Compatible(v) {
		log.Warnf("server version %s differs in major version from this binary (%s)", v, version.TunnelcoreVersion())
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, peers []mgmt.PeerResponse, stats peer.Stats) {
	fmt.Fprintf(w, "Peers: %d/%d connected\n", stats.ConnectedPeers, stats.TotalPeers)
	fmt.Fprintf(w, "Traffic: %d B received, %d B sent\n", stats.TotalBytesReceived, stats.TotalBytesSent)

	for _, p := range peers {
		endpoint := p.Endpoint
		if endpoint == "" {
			endpoint = "none"
		}
		handshake := "never"
		if p.LastHandshake != 0 {
			handshake = time.Unix(p.LastHandshake, 0).Format(time.RFC3339)
		}
		fmt.Fprintf(w, "\n  %s\n    allowed ips: %s\n    endpoint: %s\n    status: %s\n    last handshake: %s\n    transfer: %d B received, %d B sent\n",
			p.PublicKey, p.AllowedIPs, endpoint, p.Status, handshake, p.BytesReceived, p.BytesSent)
	}
}

