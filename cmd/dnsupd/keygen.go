// ABOUTME: keygen subcommand: generates zone update secrets and BIND key stanzas.

package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var algorithm string

	cmd := &cobra.Command{
		Use:   "keygen [name]",
		Short: "Generate a zone update secret",
		Long: "Generates a random shared secret and prints it as a BIND key\n" +
			"stanza, suitable for nsupdate -k and for seeding the backend.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "example.com"
			if len(args) > 0 {
				name = args[0]
			}
			secret, err := makeSecret(algorithmBits(algorithm))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), keyStanza(secret, name, algorithm))
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "hmac-sha256", "TSIG algorithm (hmac-sha1|hmac-sha256|hmac-sha512)")
	return cmd
}

// makeSecret returns bits of randomness, base64 encoded.
func makeSecret(bits int) (string, error) {
	buf := make([]byte, bits/8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// algorithmBits sizes the secret after the HMAC's block.
func algorithmBits(algorithm string) int {
	switch {
	case strings.Contains(algorithm, "sha1"):
		return 160
	case strings.Contains(algorithm, "sha512"):
		return 512
	default:
		return 256
	}
}

func keyStanza(secret, name, algorithm string) string {
	return fmt.Sprintf("key %q {\n\talgorithm %s;\n\tsecret %q;\n};\n", name, algorithm, secret)
}
