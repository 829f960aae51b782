package hsubs

import (
	"fmt"
	"strconv"
	"strings"
)

// decodeCFEmail reverses Cloudflare e-mail obfuscation: the first hex byte is
// an XOR key for every following byte.
func decodeCFEmail(enc string) (string, error) {
	if len(enc) < 2 || len(enc)%2 != 0 {
		return "", fmt.Errorf("cfemail %q: odd length", enc)
	}
	key, err := strconv.ParseUint(enc[:2], 16, 8)
	if err != nil {
		return "", fmt.Errorf("cfemail %q: %w", enc, err)
	}
	var b strings.Builder
	for i := 2; i < len(enc); i += 2 {
		v, err := strconv.ParseUint(enc[i:i+2], 16, 8)
		if err != nil {
			return "", fmt.Errorf("cfemail %q: %w", enc, err)
		}
		b.WriteByte(byte(v ^ key))
	}
	return b.String(), nil
}
