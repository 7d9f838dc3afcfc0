package session

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet omits characters that read ambiguously (0/O, 1/I/l).
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

func randomCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// newRoomCode generates a code not present in existing, regenerating on
// collision. Caller must hold the store lock.
func newRoomCode(existing map[string]*Room) string {
	for {
		code := randomCode()
		if _, taken := existing[code]; !taken {
			return code
		}
	}
}

// ValidCode reports whether code is a well-formed room code: exactly six
// characters drawn from the code alphabet. Gateways reject anything else
// before touching the store.
func ValidCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'A' && c <= 'Z' && c != 'I' && c != 'O':
		case c >= '2' && c <= '9':
		default:
			return false
		}
	}
	return true
}
