package cli

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kjlockhart/safer/internal/validation"
	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/kjlockhart/safer/pkg/secure"
	"github.com/spf13/cobra"
)

type RoundKeyResult struct {
	Round int    `json:"round"`
	Mix   string `json:"mix"`
	Sub   string `json:"sub"`
}

type ScheduleResult struct {
	Rounds int              `json:"rounds"`
	Keys   []RoundKeyResult `json:"keys"`
	Final  string           `json:"final"`
	Flat   string           `json:"flat"`
}

func newScheduleResult(s *safer.Schedule) ScheduleResult {
	keys := s.RoundKeys()
	result := ScheduleResult{
		Rounds: s.Rounds(),
		Keys:   make([]RoundKeyResult, len(keys)),
	}
	for i, k := range keys {
		result.Keys[i] = RoundKeyResult{
			Round: i + 1,
			Mix:   hex.EncodeToString(k.Mix[:]),
			Sub:   hex.EncodeToString(k.Sub[:]),
		}
	}
	final := s.Final()
	result.Final = hex.EncodeToString(final[:])
	result.Flat = hex.EncodeToString(s.Bytes())
	return result
}

func NewScheduleCommand() *cobra.Command {
	var (
		keys  keyFlags
		parse string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the expanded key schedule",
		Long: `Expand a passphrase into its SAFER key schedule and print the round keys.
The flat form is the classic byte layout: the round count followed by
one 8-byte group per key-mixing and substitution layer.`,
		Example: `  safer schedule --profile delta-sk128 -p DeltaControlsInc.
  safer schedule -p secret --rounds 6 --basic --json
  safer schedule --parse 01090a0b0c0d0e0f101e83533eb6a0f5c68900e65934fa4b4a`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				s   *safer.Schedule
				err error
			)
			if parse != "" {
				s, err = parseFlatSchedule(parse)
			} else {
				s, err = keys.schedule(cmd, false)
			}
			if err != nil {
				return err
			}
			defer s.Wipe()

			result := newScheduleResult(s)
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			yellow := color.New(color.FgYellow)
			green := color.New(color.FgGreen, color.Bold)

			green.Fprintf(out, "=== KEY SCHEDULE (%d rounds) ===\n", result.Rounds)
			for _, k := range result.Keys {
				yellow.Fprintf(out, "round %2d", k.Round)
				fmt.Fprintf(out, "  mix %s  sub %s\n", k.Mix, k.Sub)
			}
			yellow.Fprint(out, "final   ")
			fmt.Fprintf(out, "  mix %s\n", result.Final)
			return nil
		},
	}

	keys.register(cmd)
	cmd.Flags().StringVar(&parse, "parse", "", "Decode a flat schedule given as hex instead of deriving one")
	return cmd
}

func parseFlatSchedule(input string) (*safer.Schedule, error) {
	input = strings.Join(strings.Fields(input), "")
	if err := validation.ValidateHex(input); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	raw, err := hex.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("failed to decode schedule: %w", err)
	}
	defer secure.Zero(raw)
	return safer.ParseSchedule(raw)
}
