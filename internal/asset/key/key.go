// Package key provides unique object key generation for stored assets.
package key

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generate creates a new object key under prefix.
// Format: <prefix>/<YYYY>/<MM>/<DD>/<unix-ms>-<random>.<ext>
// Example: uploads/i2i/2026/10/19/1760832000000-k3f9a0zq.png
// The date segments use UTC. suffixLen is the length of the random
// lowercase alphanumeric suffix.
func Generate(prefix, ext string, suffixLen int, now time.Time) string {
	now = now.UTC()
	prefix = strings.Trim(prefix, "/")
	ext = strings.TrimPrefix(ext, ".")

	return fmt.Sprintf("%s/%04d/%02d/%02d/%d-%s.%s",
		prefix,
		now.Year(), int(now.Month()), now.Day(),
		now.UnixMilli(),
		randomSuffix(suffixLen),
		ext,
	)
}

func randomSuffix(n int) string {
	if n <= 0 {
		n = 8
	}
	var b strings.Builder
	b.Grow(n)
	limit := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("key: read random: %v", err))
		}
		b.WriteByte(alphabet[v.Int64()])
	}
	return b.String()
}
