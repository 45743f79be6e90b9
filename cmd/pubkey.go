package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tunnelcore/tunnelcore/encryption"
)

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey [private-key]",
	Short: "derive the public key from a private key",
	Long:  "Derives the public key from a private key given as argument or read from stdin. On a terminal the key is read without echo",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var priv string
		if len(args) == 1 {
			priv = args[0]
		} else {
			var err error
			priv, err = readPrivateKey(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
		}

		pub, err := encryption.DerivePublicKey(strings.TrimSpace(priv))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), pub)
		return nil
	},
}

// readPrivateKey reads one line from in. When in is an interactive terminal the input is not echoed.
func readPrivateKey(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Private key: ")
		bs, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read private key from terminal: %w", err)
		}
		return string(bs), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read private key from stdin: %w", err)
	}
	return line, nil
}
