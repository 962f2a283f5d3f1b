package cli

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/kjlockhart/safer/internal/validation"
	"github.com/kjlockhart/safer/pkg/config"
	"github.com/kjlockhart/safer/pkg/crypto/kdf"
	"github.com/kjlockhart/safer/pkg/secure"
	"github.com/kjlockhart/safer/pkg/storage"
	"github.com/spf13/cobra"
)

type KeygenResult struct {
	Path         string `json:"path"`
	Rounds       int    `json:"rounds"`
	Strengthened bool   `json:"strengthened"`
	KDF          string `json:"kdf"`
	Salt         string `json:"salt,omitempty"`
}

// defaultKeyFile is used when neither --out nor the config names a key file.
func defaultKeyFile(cm *config.ConfigManager) string {
	if p := cm.GetConfig().Storage.KeyFile; p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(cm.Path()), "key.json")
}

func NewKeygenCommand() *cobra.Command {
	var (
		keys  keyFlags
		out   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Derive a key and store it in a password-sealed key file",
		Long: `Derive the key halves from a passphrase and seal them under a separate
password (Argon2id + ChaCha20-Poly1305). The round count, schedule variant and
derivation method are authenticated with the key, so later runs only need
--keyfile and the password.

Salted derivations without --salt get a fresh random salt.`,
		Example: `  safer keygen --profile delta-sk128 -p DeltaControlsInc. -o delta.json
  safer keygen --kdf argon2id -p "long passphrase"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := config.NewConfigManager()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if out == "" {
				out = defaultKeyFile(cm)
			}

			store := storage.NewKeyStore(out).WithParams(cm.GetConfig().Security.KDFParams)
			if store.Exists() && !force {
				return fmt.Errorf("key file %s already exists (use --force to replace it)", out)
			}

			opts, err := keys.options(cm)
			if err != nil {
				return err
			}
			opts.Passphrase, err = keys.resolvePassphrase(cmd, false)
			if err != nil {
				return err
			}
			if err := validation.ValidatePassphrase(opts.Passphrase); err != nil {
				return err
			}
			if err := cm.ValidateOptions(opts); err != nil {
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
			if method.Salted() && salt == nil {
				if salt, err = kdf.NewSalt(); err != nil {
					return fmt.Errorf("failed to generate salt: %w", err)
				}
			}

			k1, k2, err := kdf.Derive(method, opts.Passphrase, salt, cm.GetConfig().Security.KDFParams)
			if err != nil {
				return err
			}

			password, err := resolvePassword(cmd, false, true)
			if err != nil {
				return err
			}
			defer password.Destroy()

			raw := password.Get()
			defer secure.Zero(raw)

			if store.Exists() {
				if err := store.Delete(); err != nil {
					return fmt.Errorf("failed to remove old key file: %w", err)
				}
				slog.Debug("removed old key file", "path", out)
			}

			keyOpts := storage.KeyOptions{Rounds: opts.Rounds, Strengthened: opts.Strengthened, KDF: method}
			if err := store.Save(k1, k2, keyOpts, raw); err != nil {
				return fmt.Errorf("failed to save key file: %w", err)
			}

			result := KeygenResult{
				Path:         out,
				Rounds:       opts.Rounds,
				Strengthened: opts.Strengthened,
				KDF:          string(method),
				Salt:         hex.EncodeToString(salt),
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			w := cmd.OutOrStdout()
			green := color.New(color.FgGreen, color.Bold)
			green.Fprintf(w, "✅ Key file written to: %s\n", out)
			fmt.Fprintf(w, "   rounds %d, strengthened %t, kdf %s\n", result.Rounds, result.Strengthened, result.KDF)
			if result.Salt != "" {
				fmt.Fprintf(w, "   salt %s\n", result.Salt)
			}
			return nil
		},
	}

	keys.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Key file to write (default from config)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing key file")
	_ = cmd.Flags().MarkHidden("keyfile")

	return cmd
}
