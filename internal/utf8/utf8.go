// Package utf8 validates UTF-8 for string fields on the decode path.
package utf8

import (
	"encoding/binary"
)

const highBits = 0x8080808080808080

// states of the validating automaton
const (
	sAccept = iota
	sReject
	sCont1 // one continuation byte remaining
	sCont2
	sCont3
	sE0   // after E0: next in A0..BF
	sED   // after ED: next in 80..9F
	sF0   // after F0: next in 90..BF
	sF4   // after F4: next in 80..8F
	numStates
)

// byte classes
const (
	cASCII = iota
	cCont80 // 80..8F
	cCont90 // 90..9F
	cContA0 // A0..BF
	cInvalid
	cLead2 // C2..DF
	cE0
	cLead3 // E1..EC, EE..EF
	cED
	cF0
	cLead4 // F1..F3
	cF4
	numClasses
)

var (
	classes     [256]uint8
	transitions [numStates][numClasses]uint8
)

func init() {
	for b := range 256 {
		var c uint8
		switch {
		case b < 0x80:
			c = cASCII
		case b < 0x90:
			c = cCont80
		case b < 0xa0:
			c = cCont90
		case b < 0xc0:
			c = cContA0
		case b < 0xc2:
			c = cInvalid
		case b < 0xe0:
			c = cLead2
		case b == 0xe0:
			c = cE0
		case b == 0xed:
			c = cED
		case b < 0xf0:
			c = cLead3
		case b == 0xf0:
			c = cF0
		case b < 0xf4:
			c = cLead4
		case b == 0xf4:
			c = cF4
		default:
			c = cInvalid
		}
		classes[b] = c
	}

	for s := range transitions {
		for c := range transitions[s] {
			transitions[s][c] = sReject
		}
	}
	a := &transitions[sAccept]
	a[cASCII] = sAccept
	a[cLead2] = sCont1
	a[cE0] = sE0
	a[cLead3] = sCont2
	a[cED] = sED
	a[cF0] = sF0
	a[cLead4] = sCont3
	a[cF4] = sF4
	for _, c := range []int{cCont80, cCont90, cContA0} {
		transitions[sCont1][c] = sAccept
		transitions[sCont2][c] = sCont1
		transitions[sCont3][c] = sCont2
	}
	transitions[sE0][cContA0] = sCont1
	transitions[sED][cCont80] = sCont1
	transitions[sED][cCont90] = sCont1
	transitions[sF0][cCont90] = sCont2
	transitions[sF0][cContA0] = sCont2
	transitions[sF4][cCont80] = sCont2
}

// Valid reports whether b is well-formed UTF-8. ASCII is consumed eight
// bytes at a time until the first high-bit byte, after which the automaton
// runs to the end.
func Valid(b []byte) bool {
	for len(b) >= 8 {
		if binary.LittleEndian.Uint64(b)&highBits != 0 {
			break
		}
		b = b[8:]
	}
	state := uint8(sAccept)
	for _, c := range b {
		state = transitions[state][classes[c]]
		if state == sReject {
			return false
		}
	}
	return state == sAccept
}

// ValidString is [Valid] for a string.
func ValidString(s string) bool {
	for len(s) >= 8 {
		if s[0]|s[1]|s[2]|s[3]|s[4]|s[5]|s[6]|s[7] >= 0x80 {
			break
		}
		s = s[8:]
	}
	state := uint8(sAccept)
	for i := 0; i < len(s); i++ {
		state = transitions[state][classes[s[i]]]
		if state == sReject {
			return false
		}
	}
	return state == sAccept
}
