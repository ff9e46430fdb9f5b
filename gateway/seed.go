package gateway

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// seededUUID derives an RFC 4122 v4-shaped UUID from a secret seed.
// The PRNG state absorbs every seed byte, so any change to the seed,
// including extending it, yields a different id.
func seededUUID(seed []byte) uuid.UUID {
	// A non-zero start state keeps zero bytes from being absorbed
	// without effect.
	p := prng{state: 0xcbf29ce484222325}
	for _, b := range seed {
		p.absorb(b)
	}

	var id uuid.UUID
	binary.BigEndian.PutUint64(id[0:8], p.next())
	binary.BigEndian.PutUint64(id[8:16], p.next())

	id[6] = (id[6] & 0x0f) | 0x40 // version 4
	id[8] = (id[8] & 0x3f) | 0x80 // variant 10

	return id
}

// prng is splitmix64.
type prng struct {
	state uint64
}

func (p *prng) absorb(b byte) {
	p.state = (p.state ^ uint64(b)) * 0x100000001b3
}

func (p *prng) next() uint64 {
	p.state += 0x9e3779b97f4a7c15

	z := p.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb

	return z ^ (z >> 31)
}
