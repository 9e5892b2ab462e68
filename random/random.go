package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/big"
	mrand "math/rand"
	"time"
)

// codeset deliberately drops 0/O/1/I/L: order codes and activation codes
// end up on invoices and support calls, so every character must survive
// being read aloud or retyped.
const codeset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

func init() {
	var b [8]byte
	_, err := crand.Read(b[:])
	if err != nil {
		mrand.Seed(time.Now().UnixNano())
		return
	}
	mrand.Seed(int64(binary.LittleEndian.Uint64(b[:])))
}

// Code returns a human-safe identifier. Not for secrets: collisions are
// handled by unique constraints, not by entropy.
func Code(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = codeset[mrand.Intn(len(codeset))]
	}
	return string(b)
}

// CodeSecure draws every character from crypto/rand. Activation codes are
// bearer tokens, so they go through here.
func CodeSecure(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		l := big.NewInt(int64(len(codeset)))
		num, err := crand.Int(crand.Reader, l)
		if err != nil {
			return "", err
		}
		b[i] = codeset[num.Int64()]
	}
	return string(b), nil
}
