package auth

import "golang.org/x/crypto/argon2"

func deriveForTest(password, salt string, p argonParams, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), []byte(salt), p.time, p.memory, p.threads, keyLen)
}
