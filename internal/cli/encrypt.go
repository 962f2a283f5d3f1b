package cli

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/kjlockhart/safer/pkg/config"
	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/kjlockhart/safer/pkg/filter"
	"github.com/kjlockhart/safer/pkg/secure"
	"github.com/spf13/cobra"
)

type ioFlags struct {
	input  string
	output string
	text   string
	armor  bool
}

func (f *ioFlags) stdinIsData() bool {
	return f.input == "" && f.text == ""
}

func (f *ioFlags) read(cmd *cobra.Command) ([]byte, error) {
	switch {
	case f.text != "":
		return []byte(f.text), nil
	case f.input != "":
		data, err := os.ReadFile(f.input)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		return data, nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
}

// applyConfig takes the armor setting from the config unless --armor was given.
func (f *ioFlags) applyConfig(cmd *cobra.Command) error {
	if cmd.Flags().Changed("armor") {
		return nil
	}
	cm, err := config.NewConfigManager()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	f.armor = cm.GetConfig().Defaults.Armor
	return nil
}

func (f *ioFlags) write(cmd *cobra.Command, data []byte, verb string) error {
	if f.output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(f.output, data, 0600); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Fprintf(cmd.ErrOrStderr(), "✅ %s to: %s\n", verb, f.output)
	return nil
}

func NewEncryptCommand() *cobra.Command {
	var (
		keys keyFlags
		data ioFlags
	)

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt files or text with SAFER and length-trailer framing",
		Long: `Encrypt a payload block by block with SAFER, appending the payload length
in the final block the way Delta Controls equipment frames its packets.

The framing has no IV and no authentication. Use it to talk to devices that
expect it, not to protect data at rest.`,
		Example: `  # Encrypt text with the Delta Controls preset
  safer encrypt --profile delta-sk128 --text "LOGIN" --armor

  # Encrypt a file with a salted argon2id key
  safer encrypt -i packet.bin -o packet.enc --kdf argon2id --salt 00112233445566778899aabbccddeeff

  # Encrypt stdin with the passphrase taken from SAFER_PASSPHRASE
  echo "hello" | safer encrypt --armor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := data.applyConfig(cmd); err != nil {
				return err
			}
			s, err := keys.schedule(cmd, data.stdinIsData())
			if err != nil {
				return err
			}
			defer s.Wipe()

			plaintext, err := data.read(cmd)
			if err != nil {
				return err
			}
			defer secure.Zero(plaintext)

			ciphertext, err := filter.Apply(safer.NewCipher(s), plaintext)
			if err != nil {
				return fmt.Errorf("encryption failed: %w", err)
			}

			if data.armor {
				ciphertext = []byte(base64.StdEncoding.EncodeToString(ciphertext) + "\n")
			}
			return data.write(cmd, ciphertext, "Encrypted")
		},
	}

	keys.register(cmd)
	cmd.Flags().StringVarP(&data.input, "input", "i", "", "Input file to encrypt")
	cmd.Flags().StringVarP(&data.output, "output", "o", "", "Output file for encrypted data")
	cmd.Flags().StringVar(&data.text, "text", "", "Text to encrypt directly")
	cmd.Flags().BoolVar(&data.armor, "armor", false, "Output as base64 encoded text (default from config)")

	return cmd
}

func NewDecryptCommand() *cobra.Command {
	var (
		keys keyFlags
		data ioFlags
	)

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt data produced by 'encrypt' or by Delta Controls equipment",
		Example: `  # Decrypt a captured packet
  safer decrypt --profile delta-sk128 -i capture.bin

  # Decrypt base64 from stdin
  cat packet.txt | safer decrypt --armor -p DeltaControlsInc.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := data.applyConfig(cmd); err != nil {
				return err
			}
			s, err := keys.schedule(cmd, data.stdinIsData())
			if err != nil {
				return err
			}
			defer s.Wipe()

			raw, err := data.read(cmd)
			if err != nil {
				return err
			}

			ciphertext := raw
			if data.armor {
				ciphertext, err = base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
				if err != nil {
					return fmt.Errorf("failed to decode base64: %w", err)
				}
			}

			plaintext, err := filter.Clear(safer.NewCipher(s), ciphertext)
			if err != nil {
				return fmt.Errorf("decryption failed: %w", err)
			}
			defer secure.Zero(plaintext)

			return data.write(cmd, plaintext, "Decrypted")
		},
	}

	keys.register(cmd)
	cmd.Flags().StringVarP(&data.input, "input", "i", "", "Input file to decrypt")
	cmd.Flags().StringVarP(&data.output, "output", "o", "", "Output file for decrypted data")
	cmd.Flags().StringVar(&data.text, "text", "", "Ciphertext given directly (use with --armor)")
	cmd.Flags().BoolVar(&data.armor, "armor", false, "Input is base64 encoded (default from config)")

	return cmd
}
