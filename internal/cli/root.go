package cli

import (
	"log/slog"

	"github.com/fatih/color"
	"github.com/kjlockhart/safer/pkg/config"
	"github.com/spf13/cobra"
)

// NewRootCommand assembles the safer command tree.
func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "safer",
		Short: "SAFER K/SK block cipher with Delta Controls compatibility",
		Long: `Safer implements the SAFER K-64/K-128 and SK-64/SK-128 block ciphers with
the key schedule, passphrase derivation and packet framing used by
Delta Controls building automation equipment.

Features:
- 1 to 13 rounds, basic or strengthened key schedule
- Legacy reset-filter derivation plus salted PBKDF2 and Argon2id
- Length-trailer framing compatible with captured device traffic
- Password-sealed key files
- Per-layer state tracing for analysis (--trace)

The framing is unauthenticated ECB. Use it for interoperability only.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			trace, _ := cmd.Flags().GetBool("trace")

			level := slog.LevelWarn
			if verbose || trace {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: level,
			})))

			// A broken config must not stop 'config init --force' from repairing it.
			if cm, err := config.NewConfigManager(); err == nil {
				if !cm.GetConfig().UI.UseColor {
					color.NoColor = true
				}
			} else {
				slog.Warn("ignoring unreadable config", "error", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		NewEncryptCommand(),
		NewDecryptCommand(),
		NewBlockCommand(),
		NewScheduleCommand(),
		NewDeriveCommand(),
		NewKeygenCommand(),
		NewSelfTestCommand(),
		NewConfigCommand(),
	)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().Bool("trace", false, "Log every intermediate cipher state (exposes key-dependent values)")

	return rootCmd
}
