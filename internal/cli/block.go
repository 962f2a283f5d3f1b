package cli

import (
	"encoding/hex"
	"fmt"

	"github.com/kjlockhart/safer/internal/validation"
	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/spf13/cobra"
)

type BlockResult struct {
	Op     string `json:"op"`
	Rounds int    `json:"rounds"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// NewBlockCommand groups the raw single-block transforms.
func NewBlockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Transform a single 8-byte block",
		Long: `Encrypt or decrypt exactly one 8-byte block given as 16 hex characters.
No framing or padding is applied.`,
	}

	cmd.AddCommand(
		newBlockOpCommand(safer.OpEncrypt),
		newBlockOpCommand(safer.OpDecrypt),
	)

	return cmd
}

func newBlockOpCommand(op safer.Op) *cobra.Command {
	var keys keyFlags

	cmd := &cobra.Command{
		Use:   op.String() + " <hex>",
		Short: fmt.Sprintf("%s one block", op),
		Args:  cobra.ExactArgs(1),
		Example: fmt.Sprintf(`  safer block %s 3132333435363738 --profile delta-sk128
  safer block %s "0c 06 2e 09 76 01 0a 03" -p secret --rounds 6 --basic`, op, op),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := validation.ParseBlock(args[0])
			if err != nil {
				return err
			}

			s, err := keys.schedule(cmd, false)
			if err != nil {
				return err
			}
			defer s.Wipe()

			var out safer.Block
			if op == safer.OpEncrypt {
				out = s.EncryptBlock(in)
			} else {
				out = s.DecryptBlock(in)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), BlockResult{
					Op:     op.String(),
					Rounds: s.Rounds(),
					Input:  hex.EncodeToString(in[:]),
					Output: hex.EncodeToString(out[:]),
				})
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(out[:]))
			return err
		},
	}

	keys.register(cmd)
	return cmd
}
