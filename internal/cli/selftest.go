package cli

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/kjlockhart/safer/pkg/filter"
	"github.com/spf13/cobra"
)

const deltaPassphrase = "DeltaControlsInc."

var errSelfTest = errors.New("self test failed")

type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

type selfCheck struct {
	name string
	run  func() error
}

func expectHex(what string, got []byte, want string) error {
	if g := hex.EncodeToString(got); g != want {
		return fmt.Errorf("%s: got %s, want %s", what, g, want)
	}
	return nil
}

func selfChecks() []selfCheck {
	return []selfCheck{
		{"field tables", func() error {
			exp, log := safer.Tables()
			if exp[0] != 1 || exp[128] != 0 {
				return fmt.Errorf("exp[0]=%d exp[128]=%d", exp[0], exp[128])
			}
			for i := 0; i < 256; i++ {
				if int(log[exp[i]]) != i {
					return fmt.Errorf("log[exp[%d]] = %d", i, log[exp[i]])
				}
			}
			return nil
		}},
		{"reset filter derivation", func() error {
			k1, k2 := safer.DeriveHalves(deltaPassphrase)
			if err := expectHex("k1", k1[:], "54fd49756c465513"); err != nil {
				return err
			}
			return expectHex("k2", k2[:], "d310ac6898573bbb")
		}},
		{"SK-128 known answer", func() error {
			s := safer.NewSK128(deltaPassphrase)
			ct := s.EncryptBlock(safer.Block{'1', '2', '3', '4', '5', '6', '7', '8'})
			if err := expectHex("ciphertext", ct[:], "30e3c537c84f7d4c"); err != nil {
				return err
			}
			if pt := s.DecryptBlock(ct); string(pt[:]) != "12345678" {
				return fmt.Errorf("decrypt: got %x", pt)
			}
			return nil
		}},
		{"captured packet", func() error {
			packet, _ := hex.DecodeString("86f0cc032822b859cfd8e6351827b7fbf27ccf5c3fd04d33")
			b := safer.NewCipher(safer.NewSK128(deltaPassphrase))

			payload, err := filter.Clear(b, packet)
			if err != nil {
				return err
			}
			if err := expectHex("payload", payload, "0c062e0976010a033c0008004c4f47494e00"); err != nil {
				return err
			}
			again, err := filter.Apply(b, payload)
			if err != nil {
				return err
			}
			if !bytes.Equal(again, packet) {
				return fmt.Errorf("re-encrypted packet differs: %x", again)
			}
			return nil
		}},
		{"round trip 1-13 rounds", func() error {
			k1, k2 := safer.DeriveHalves(deltaPassphrase)
			in := safer.Block{0, 1, 2, 3, 4, 5, 6, 7}
			for r := 1; r <= safer.MaxRounds; r++ {
				for _, strengthened := range []bool{false, true} {
					s := safer.Expand(k1, k2, r, strengthened)
					if got := s.DecryptBlock(s.EncryptBlock(in)); got != in {
						return fmt.Errorf("rounds %d strengthened %t: got %x", r, strengthened, got)
					}
				}
			}
			return nil
		}},
	}
}

func NewSelfTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run the built-in known-answer tests",
		Long: `Check the field tables, the reset filter key derivation, a known SK-128
block and a captured Delta Controls packet against their expected values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := selfChecks()
			results := make([]CheckResult, 0, len(checks))
			failed := 0

			for _, c := range checks {
				r := CheckResult{Name: c.name, Passed: true}
				if err := c.run(); err != nil {
					r.Passed = false
					r.Error = err.Error()
					failed++
				}
				results = append(results, r)
			}

			if jsonOutput(cmd) {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				green := color.New(color.FgGreen)
				red := color.New(color.FgRed, color.Bold)
				for _, r := range results {
					if r.Passed {
						green.Fprintf(out, "✅ %s\n", r.Name)
					} else {
						red.Fprintf(out, "❌ %s: %s\n", r.Name, r.Error)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%w: %d of %d checks", errSelfTest, failed, len(results))
			}
			return nil
		},
	}
}
