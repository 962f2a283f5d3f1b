package safer

// lane describes how one byte position is keyed and substituted. Positions
// 0, 3, 4 and 7 are XOR-keyed and go through EXP followed by an additive bias;
// positions 1, 2, 5 and 6 are ADD-keyed and go through LOG followed by an XOR
// bias. The assignment depends only on the position, never on the data.
type lane struct {
	mix, unmix func(x, k byte) byte
	sub, unsub func(x, k byte) byte
}

var (
	expLane = lane{
		mix:   func(x, k byte) byte { return x ^ k },
		unmix: func(x, k byte) byte { return x ^ k },
		sub:   func(x, k byte) byte { return expTab[x] + k },
		unsub: func(x, k byte) byte { return logTab[x-k] },
	}
	logLane = lane{
		mix:   func(x, k byte) byte { return x + k },
		unmix: func(x, k byte) byte { return x - k },
		sub:   func(x, k byte) byte { return logTab[x] ^ k },
		unsub: func(x, k byte) byte { return expTab[x^k] },
	}

	lanes = [BlockSize]lane{expLane, logLane, logLane, expLane, expLane, logLane, logLane, expLane}
)

// phtLayers are the three Pseudo-Hadamard layers that together form the
// 8-point linear mixing network. Pairs within a layer are disjoint.
var phtLayers = [3][4][2]int{
	{{0, 1}, {2, 3}, {4, 5}, {6, 7}},
	{{0, 2}, {4, 6}, {1, 3}, {5, 7}},
	{{0, 4}, {1, 5}, {2, 6}, {3, 7}},
}

// shuffle reorders the state after diffusion (next[i] = state[shuffle[i]]);
// unshuffle is its inverse.
var (
	shuffle   = [BlockSize]int{0, 4, 1, 5, 2, 6, 3, 7}
	unshuffle = [BlockSize]int{0, 2, 4, 6, 1, 3, 5, 7}
)

func permute(st *Block, p *[BlockSize]int) {
	t := *st
	for i := range st {
		st[i] = t[p[i]]
	}
}

func mixKey(st *Block, k *Subkey) {
	for i := range st {
		st[i] = lanes[i].mix(st[i], k[i])
	}
}

func unmixKey(st *Block, k *Subkey) {
	for i := range st {
		st[i] = lanes[i].unmix(st[i], k[i])
	}
}

// EncryptBlock encrypts one block.
func (s *Schedule) EncryptBlock(in Block) Block {
	st := in
	for r := range s.keys {
		k := &s.keys[r]

		mixKey(&st, &k.Mix)
		s.trace(OpEncrypt, r+1, StageKeyMix, st)

		for i := range st {
			st[i] = lanes[i].sub(st[i], k.Sub[i])
		}
		s.trace(OpEncrypt, r+1, StageSubstitute, st)

		for _, layer := range phtLayers {
			for _, p := range layer {
				st[p[1]] += st[p[0]]
				st[p[0]] += st[p[1]]
			}
		}
		s.trace(OpEncrypt, r+1, StageDiffuse, st)

		permute(&st, &shuffle)
		s.trace(OpEncrypt, r+1, StagePermute, st)
	}

	mixKey(&st, &s.final)
	s.trace(OpEncrypt, len(s.keys)+1, StageWhiten, st)
	return st
}

// DecryptBlock decrypts one block. It undoes EncryptBlock layer by layer,
// walking the schedule backwards.
func (s *Schedule) DecryptBlock(in Block) Block {
	st := in

	unmixKey(&st, &s.final)
	s.trace(OpDecrypt, len(s.keys)+1, StageWhiten, st)

	for r := len(s.keys) - 1; r >= 0; r-- {
		k := &s.keys[r]

		permute(&st, &unshuffle)
		s.trace(OpDecrypt, r+1, StagePermute, st)

		for l := len(phtLayers) - 1; l >= 0; l-- {
			for _, p := range phtLayers[l] {
				st[p[0]] -= st[p[1]]
				st[p[1]] -= st[p[0]]
			}
		}
		s.trace(OpDecrypt, r+1, StageDiffuse, st)

		for i := range st {
			st[i] = lanes[i].unsub(st[i], k.Sub[i])
		}
		s.trace(OpDecrypt, r+1, StageSubstitute, st)

		unmixKey(&st, &k.Mix)
		s.trace(OpDecrypt, r+1, StageKeyMix, st)
	}

	return st
}
