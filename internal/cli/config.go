package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/kjlockhart/safer/internal/validation"
	"github.com/kjlockhart/safer/pkg/config"
	"github.com/kjlockhart/safer/pkg/crypto/kdf"
	"github.com/spf13/cobra"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and manage configuration and profiles",
		Long: `The configuration lives at $SAFER_CONFIG, $XDG_CONFIG_HOME/safer/config.json
or ~/.config/safer/config.json. Profiles are kept next to it in profiles.json.`,
	}

	cmd.AddCommand(
		newConfigShowCommand(),
		newConfigInitCommand(),
		newProfilesCommand(),
	)

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := config.NewConfigManager()
			if err != nil {
				return err
			}

			if !jsonOutput(cmd) {
				yellow := color.New(color.FgYellow)
				yellow.Fprintf(cmd.ErrOrStderr(), "# %s\n", cm.Path())
			}
			return writeJSON(cmd.OutOrStdout(), cm.GetConfig())
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config %s already exists (use --force to reset it)", path)
			}

			cm := config.NewDefaultConfigManager(path)
			if err := cm.SaveConfig(); err != nil {
				return err
			}

			green := color.New(color.FgGreen, color.Bold)
			green.Fprintf(cmd.OutOrStdout(), "✅ Wrote %s\n", cm.Path())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration")
	return cmd
}

func newProfilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List, add or delete parameter profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := config.NewConfigManager()
			if err != nil {
				return err
			}

			profiles := cm.ListProfiles()
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), profiles)
			}

			out := cmd.OutOrStdout()
			cyan := color.New(color.FgCyan, color.Bold)
			for _, p := range profiles {
				cyan.Fprintf(out, "%s", p.Name)
				fmt.Fprintf(out, "  rounds=%d strengthened=%t kdf=%s", p.Rounds, p.Strengthened, p.KDF)
				if len(p.Tags) > 0 {
					fmt.Fprintf(out, " [%s]", strings.Join(p.Tags, ","))
				}
				fmt.Fprintln(out)
				if p.Description != "" {
					fmt.Fprintf(out, "  %s\n", p.Description)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(newProfileAddCommand(), newProfileDeleteCommand())
	return cmd
}

func newProfileAddCommand() *cobra.Command {
	var (
		description string
		rounds      int
		basic       bool
		method      string
		salt        string
	)

	cmd := &cobra.Command{
		Use:     "add <name>",
		Short:   "Save a named profile",
		Args:    cobra.ExactArgs(1),
		Example: `  safer config profiles add lab --rounds 8 --kdf argon2id --salt 00112233445566778899aabbccddeeff`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := kdf.ParseMethod(method)
			if err != nil {
				return err
			}
			if err := validation.ValidateRounds(rounds); err != nil {
				return err
			}
			if _, err := validation.ParseSalt(salt); err != nil {
				return err
			}

			cm, err := config.NewConfigManager()
			if err != nil {
				return err
			}

			profile := &config.Profile{
				Name:         args[0],
				Description:  description,
				Rounds:       rounds,
				Strengthened: !basic,
				KDF:          m,
				Salt:         salt,
			}
			if err := cm.AddProfile(profile); err != nil {
				return err
			}

			green := color.New(color.FgGreen, color.Bold)
			green.Fprintf(cmd.OutOrStdout(), "✅ Saved profile %s\n", profile.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Profile description")
	cmd.Flags().IntVarP(&rounds, "rounds", "r", 11, "Number of rounds")
	cmd.Flags().BoolVar(&basic, "basic", false, "Use the basic key schedule")
	cmd.Flags().StringVar(&method, "kdf", string(kdf.MethodLegacy), "Key derivation method")
	cmd.Flags().StringVar(&salt, "salt", "", "Hex salt for pbkdf2/argon2id")

	return cmd
}

func newProfileDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, err := config.NewConfigManager()
			if err != nil {
				return err
			}
			if err := cm.DeleteProfile(args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s\n", args[0])
			return nil
		},
	}
}
