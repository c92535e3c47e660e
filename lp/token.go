// Package lp implements the NDN-LP PIT token convention used to match
// returning Data and Nack packets to their pending Interest entries without
// a name-based lookup.
package lp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
)

// TokenLength is the wire size of a PIT token produced by this package.
const TokenLength = 8

// TokenGenerator produces the 8-byte tokens carried in the LpPacket PitToken
// field. The sequence is seeded into [2^32, 2^64) so application tokens are
// never mistaken for small forwarder-assigned values, and increments by one
// per Interest. Wraparound is not handled; a single process cannot issue
// 2^63 Interests.
//
// A generator is not safe for concurrent use; each pipeline owns one.
type TokenGenerator struct {
	seq uint64
}

func NewTokenGenerator() *TokenGenerator {
	var seed [TokenLength]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("entropy source unavailable: %v", err))
	}

	seq := binary.BigEndian.Uint64(seed[:])
	if seq <= math.MaxUint32 {
		seq |= 1 << 32
	}

	return &TokenGenerator{seq: seq}
}

// Next advances the sequence and returns its big-endian wire form.
func (g *TokenGenerator) Next() []byte {
	g.seq++
	token := make([]byte, TokenLength)
	binary.BigEndian.PutUint64(token, g.seq)
	return token
}

// Sequence returns the value of the last issued token.
func (g *TokenGenerator) Sequence() uint64 {
	return g.seq
}

// TokenValue recovers the 64-bit value from the wire form of a token. The
// bytes are read in network order.
func TokenValue(token []byte) (uint64, error) {
	if len(token) != TokenLength {
		return 0, fmt.Errorf("invalid PIT token length %d", len(token))
	}
	return binary.BigEndian.Uint64(token), nil
}
