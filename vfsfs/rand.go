package vfsfs

import "crypto/rand"

// randRead fills buf with cryptographically random bytes for the
// "/dev/urandom" provider entry.
func randRead(buf []byte) (int, error) {
	return rand.Read(buf)
}
