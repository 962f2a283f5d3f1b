package cli

import (
	"encoding/hex"
	"fmt"

	"github.com/fatih/color"
	"github.com/kjlockhart/safer/internal/validation"
	"github.com/kjlockhart/safer/pkg/config"
	"github.com/kjlockhart/safer/pkg/crypto/kdf"
	"github.com/spf13/cobra"
)

type DeriveResult struct {
	KDF  string `json:"kdf"`
	Salt string `json:"salt,omitempty"`
	K1   string `json:"k1"`
	K2   string `json:"k2"`
}

func NewDeriveCommand() *cobra.Command {
	var keys keyFlags

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive the two 8-byte key halves from a passphrase",
		Long: `Derive the key halves fed to the key schedule. The legacy method is the
Delta Controls reset filter; it uses only the first 16 bytes of the
passphrase and carries no salt.`,
		Example: `  safer derive -p DeltaControlsInc.
  safer derive -p secret --kdf pbkdf2 --salt 00112233445566778899aabbccddeeff --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := config.NewConfigManager()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts, err := keys.options(cm)
			if err != nil {
				return err
			}

			method, err := kdf.ParseMethod(string(opts.KDF))
			if err != nil {
				return err
			}
			salt, err := validation.ParseSalt(opts.Salt)
			if err != nil {
				return err
			}

			passphrase, err := keys.resolvePassphrase(cmd, false)
			if err != nil {
				return err
			}

			k1, k2, err := kdf.Derive(method, passphrase, salt, cm.GetConfig().Security.KDFParams)
			if err != nil {
				return err
			}

			result := DeriveResult{
				KDF:  string(method),
				Salt: hex.EncodeToString(salt),
				K1:   hex.EncodeToString(k1[:]),
				K2:   hex.EncodeToString(k2[:]),
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			yellow := color.New(color.FgYellow)
			yellow.Fprint(out, "k1: ")
			fmt.Fprintln(out, result.K1)
			yellow.Fprint(out, "k2: ")
			fmt.Fprintln(out, result.K2)
			return nil
		},
	}

	keys.registerDerivation(cmd)
	return cmd
}
