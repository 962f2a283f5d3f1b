package safer

// Op identifies the direction of a traced transform.
type Op uint8

const (
	OpEncrypt Op = iota + 1
	OpDecrypt
)

func (o Op) String() string {
	switch o {
	case OpEncrypt:
		return "encrypt"
	case OpDecrypt:
		return "decrypt"
	default:
		return "unknown"
	}
}

// Stage identifies the layer whose output is being reported. During
// decryption the state is reported after the stage has been undone.
type Stage uint8

const (
	StageKeyMix Stage = iota + 1
	StageSubstitute
	StageDiffuse
	StagePermute
	StageWhiten
)

func (s Stage) String() string {
	switch s {
	case StageKeyMix:
		return "key-mix"
	case StageSubstitute:
		return "substitute"
	case StageDiffuse:
		return "diffuse"
	case StagePermute:
		return "permute"
	case StageWhiten:
		return "whiten"
	default:
		return "unknown"
	}
}

// Tracer observes the cipher state between layers. Implementations must not
// retain or log state in production: it exposes intermediate key-dependent
// values.
type Tracer interface {
	TraceState(op Op, round int, stage Stage, state Block)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(op Op, round int, stage Stage, state Block)

func (f TracerFunc) TraceState(op Op, round int, stage Stage, state Block) {
	f(op, round, stage, state)
}

// WithTracer returns a copy of s that reports every intermediate state to t.
// The copy shares key material with s.
func (s *Schedule) WithTracer(t Tracer) *Schedule {
	c := *s
	c.tracer = t
	return &c
}

func (s *Schedule) trace(op Op, round int, stage Stage, state Block) {
	if s.tracer != nil {
		s.tracer.TraceState(op, round, stage, state)
	}
}
