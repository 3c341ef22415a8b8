package gateway

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Prefix marks a CouchDB-style hashed admin password:
// -pbkdf2-<derived key hex>,<salt hex>,<iterations>. CouchDB derives
// with PBKDF2-SHA1 and a 20-byte key.
const pbkdf2Prefix = "-pbkdf2-"

const hashKeyLen = 20

// VerifyPassword checks a presented password against the configured
// one, which is either plain text or a -pbkdf2- hash. Comparisons are
// constant-time.
func VerifyPassword(configured, presented string) bool {
	if !strings.HasPrefix(configured, pbkdf2Prefix) {
		return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
	}
	key, salt, iterations, err := parseHash(configured)
	if err != nil {
		return false
	}
	derived := pbkdf2.Key([]byte(presented), salt, iterations, len(key), sha1.New)
	return subtle.ConstantTimeCompare(derived, key) == 1
}

// HashPassword derives a -pbkdf2- value suitable for the configured
// admin password, with a fresh random salt.
func HashPassword(password string, iterations int) (string, error) {
	if iterations < 1 {
		return "", fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, hashKeyLen, sha1.New)
	return fmt.Sprintf("%s%s,%s,%d",
		pbkdf2Prefix, hex.EncodeToString(key), hex.EncodeToString(salt), iterations), nil
}

func parseHash(configured string) (key, salt []byte, iterations int, err error) {
	parts := strings.SplitN(strings.TrimPrefix(configured, pbkdf2Prefix), ",", 3)
	if len(parts) != 3 {
		return nil, nil, 0, fmt.Errorf("malformed pbkdf2 value")
	}
	if key, err = hex.DecodeString(parts[0]); err != nil || len(key) == 0 {
		return nil, nil, 0, fmt.Errorf("malformed pbkdf2 key")
	}
	if salt, err = hex.DecodeString(parts[1]); err != nil {
		return nil, nil, 0, fmt.Errorf("malformed pbkdf2 salt")
	}
	if iterations, err = strconv.Atoi(parts[2]); err != nil || iterations < 1 {
		return nil, nil, 0, fmt.Errorf("malformed pbkdf2 iteration count")
	}
	return key, salt, iterations, nil
}
