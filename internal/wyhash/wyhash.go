// Package wyhash implements the seeded wyhash variant used for message
// hashing.
package wyhash

import (
	"encoding/binary"
	"math/bits"
)

var salt = [5]uint64{
	0x243F6A8885A308D3, 0x13198A2E03707344, 0xA4093822299F31D0,
	0x082EFA98EC4E6C89, 0x452821E638D01377,
}

func mix(v0, v1 uint64) uint64 {
	hi, lo := bits.Mul64(v0, v1)
	return lo ^ hi
}

func load64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func load32(b []byte) uint64 { return uint64(binary.LittleEndian.Uint32(b)) }

// Hash returns the 64-bit hash of data under seed.
func Hash(data []byte, seed uint64) uint64 {
	length := uint64(len(data))
	state := seed ^ salt[0]

	if len(data) > 64 {
		dup := state
		for len(data) > 64 {
			cs0 := mix(load64(data)^salt[1], load64(data[8:])^state)
			cs1 := mix(load64(data[16:])^salt[2], load64(data[24:])^state)
			state = cs0 ^ cs1

			ds0 := mix(load64(data[32:])^salt[3], load64(data[40:])^dup)
			ds1 := mix(load64(data[48:])^salt[4], load64(data[56:])^dup)
			dup = ds0 ^ ds1

			data = data[64:]
		}
		state ^= dup
	}

	for len(data) > 16 {
		state = mix(load64(data)^salt[1], load64(data[8:])^state)
		data = data[16:]
	}

	var a, b uint64
	switch n := len(data); {
	case n > 8:
		a = load64(data)
		b = load64(data[n-8:])
	case n > 3:
		a = load32(data)
		b = load32(data[n-4:])
	case n > 0:
		a = uint64(data[0])<<16 | uint64(data[n>>1])<<8 | uint64(data[n-1])
	}

	w := mix(a^salt[1], b^state)
	return mix(w, salt[1]^length)
}

// Uint64 hashes the little-endian encoding of v.
func Uint64(v, seed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return Hash(buf[:], seed)
}
