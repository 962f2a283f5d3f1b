package cli

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kjlockhart/safer/internal/validation"
	"github.com/kjlockhart/safer/pkg/config"
	"github.com/kjlockhart/safer/pkg/crypto/kdf"
	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/kjlockhart/safer/pkg/secure"
	"github.com/kjlockhart/safer/pkg/storage"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Environment variables consulted before prompting. Either may come from a
// .env file.
const (
	PassphraseEnv = "SAFER_PASSPHRASE"
	PasswordEnv   = "SAFER_KEYFILE_PASSWORD"
)

var (
	errNoPassphrase = errors.New("no passphrase: use --passphrase or " + PassphraseEnv + " when stdin carries data")
	errNoPassword   = errors.New("no key file password: set " + PasswordEnv + " when stdin carries data")

	errPasswordMismatch = errors.New("passwords do not match")
)

// readSecret prompts on stderr and reads one line from the command's input,
// without echo when it is a terminal. The caller zeroes the result.
func readSecret(cmd *cobra.Command, prompt string) ([]byte, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return secret, err
	}

	line, err := readLine(in)
	if err != nil {
		return nil, err
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

func readPassphrase(cmd *cobra.Command, prompt string) (string, error) {
	secret, err := readSecret(cmd, prompt)
	if err != nil {
		return "", err
	}
	defer secure.Zero(secret)
	return string(secret), nil
}

// readLine reads up to and excluding the next newline without buffering, so
// consecutive prompts can share one non-terminal input.
func readLine(r io.Reader) ([]byte, error) {
	var (
		line []byte
		b    [1]byte
	)
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			if b[0] == '\n' {
				return line, nil
			}
			line = append(line, b[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
	}
}

// keyFlags are the flags shared by every command that needs a key schedule.
type keyFlags struct {
	passphrase string
	rounds     int
	basic      bool
	kdf        string
	salt       string
	profile    string
	keyfile    string
}

func (f *keyFlags) register(cmd *cobra.Command) {
	f.registerDerivation(cmd)
	cmd.Flags().IntVarP(&f.rounds, "rounds", "r", 0, fmt.Sprintf("Number of rounds, 1-%d (default from config)", safer.MaxRounds))
	cmd.Flags().BoolVar(&f.basic, "basic", false, "Use the basic key schedule even if the profile is strengthened")
	cmd.Flags().StringVar(&f.keyfile, "keyfile", "", "Load the key from an encrypted key file")
}

// registerDerivation adds only the flags that select the key halves.
func (f *keyFlags) registerDerivation(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.passphrase, "passphrase", "p", "", "Passphrase (prompted if omitted)")
	cmd.Flags().StringVar(&f.kdf, "kdf", "", "Key derivation: legacy, pbkdf2 or argon2id (default from config)")
	cmd.Flags().StringVar(&f.salt, "salt", "", "Hex salt for pbkdf2/argon2id")
	cmd.Flags().StringVar(&f.profile, "profile", "", "Named parameter profile, e.g. "+config.DeltaProfile)
}

// resolvePassphrase takes the flag, then the environment, then prompts.
func (f *keyFlags) resolvePassphrase(cmd *cobra.Command, stdinIsData bool) (string, error) {
	if cmd.Flags().Changed("passphrase") {
		return f.passphrase, nil
	}
	if p, ok := os.LookupEnv(PassphraseEnv); ok {
		return p, nil
	}
	if stdinIsData {
		return "", errNoPassphrase
	}
	return readPassphrase(cmd, "Enter passphrase: ")
}

// resolvePassword returns the key file password from the environment or a
// prompt. With confirm set, a prompted password must be entered twice.
func resolvePassword(cmd *cobra.Command, stdinIsData, confirm bool) (*secure.SecureBytes, error) {
	if p, ok := os.LookupEnv(PasswordEnv); ok {
		return secure.FromString(p), nil
	}
	if stdinIsData {
		return nil, errNoPassword
	}

	first, err := readSecret(cmd, "Enter key file password: ")
	if err != nil {
		return nil, err
	}
	defer secure.Zero(first)

	if confirm {
		second, err := readSecret(cmd, "Confirm key file password: ")
		if err != nil {
			return nil, err
		}
		defer secure.Zero(second)
		if !secure.ConstantTimeCompare(first, second) {
			return nil, errPasswordMismatch
		}
	}
	return secure.FromBytes(first), nil
}

// options merges flags over the selected profile and the config defaults.
// The schedule variant always comes from the profile unless --basic is set.
func (f *keyFlags) options(cm *config.ConfigManager) (*config.Options, error) {
	opts := &config.Options{
		Rounds: f.rounds,
		KDF:    kdf.Method(f.kdf),
		Salt:   f.salt,
	}
	if err := cm.ApplyDefaults(opts, f.profile); err != nil {
		return nil, err
	}
	if f.basic {
		opts.Strengthened = false
	}
	return opts, nil
}

// schedule builds the key schedule the command will run with.
func (f *keyFlags) schedule(cmd *cobra.Command, stdinIsData bool) (*safer.Schedule, error) {
	var (
		s   *safer.Schedule
		err error
	)
	if f.keyfile != "" {
		s, err = f.loadKeyFile(cmd, stdinIsData)
	} else {
		s, err = f.derive(cmd, stdinIsData)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("key schedule ready", "rounds", s.Rounds())

	if trace, _ := cmd.Flags().GetBool("trace"); trace {
		s = s.WithTracer(newSlogTracer(slog.Default()))
	}
	return s, nil
}

func (f *keyFlags) derive(cmd *cobra.Command, stdinIsData bool) (*safer.Schedule, error) {
	cm, err := config.NewConfigManager()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	opts, err := f.options(cm)
	if err != nil {
		return nil, err
	}

	opts.Passphrase, err = f.resolvePassphrase(cmd, stdinIsData)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePassphrase(opts.Passphrase); err != nil {
		return nil, err
	}
	if err := cm.ValidateOptions(opts); err != nil {
		return nil, err
	}

	method, err := kdf.ParseMethod(string(opts.KDF))
	if err != nil {
		return nil, err
	}
	salt, err := validation.ParseSalt(opts.Salt)
	if err != nil {
		return nil, err
	}

	slog.Debug("deriving key", "kdf", string(method), "rounds", opts.Rounds, "strengthened", opts.Strengthened)

	k1, k2, err := kdf.Derive(method, opts.Passphrase, salt, cm.GetConfig().Security.KDFParams)
	if err != nil {
		return nil, err
	}
	return safer.Expand(k1, k2, opts.Rounds, opts.Strengthened), nil
}

func (f *keyFlags) loadKeyFile(cmd *cobra.Command, stdinIsData bool) (*safer.Schedule, error) {
	password, err := resolvePassword(cmd, stdinIsData, false)
	if err != nil {
		return nil, err
	}
	defer password.Destroy()

	raw := password.Get()
	defer secure.Zero(raw)

	s, kf, err := storage.NewKeyStore(f.keyfile).Load(raw)
	if err != nil {
		return nil, err
	}

	slog.Debug("loaded key file", "path", f.keyfile, "kdf", string(kf.KDF), "created", kf.Created)
	return s, nil
}

// newSlogTracer logs every intermediate cipher state at debug level.
func newSlogTracer(logger *slog.Logger) safer.Tracer {
	return safer.TracerFunc(func(op safer.Op, round int, stage safer.Stage, state safer.Block) {
		logger.Debug("cipher state",
			"op", op.String(),
			"round", round,
			"stage", stage.String(),
			"state", hex.EncodeToString(state[:]),
		)
	})
}

func jsonOutput(cmd *cobra.Command) bool {
	out, _ := cmd.Flags().GetBool("json")
	return out
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
