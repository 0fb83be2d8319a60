/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package plottwist

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	// CodeAlphabet leaves out I, O, 0 and 1 so codes read back unambiguously.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 4

	defaultCodeAttempts = 5
)

// GenerateCode returns a random room code.
func GenerateCode() string {
	max := big.NewInt(int64(len(CodeAlphabet)))

	out := make([]byte, CodeLength)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out[i] = CodeAlphabet[idx.Int64()]
	}

	return string(out)
}

// ValidCode reports whether code could have come from GenerateCode.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return false
		}
	}
	return true
}
