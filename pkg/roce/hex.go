package roce

import "encoding/hex"

// Hex renders b as lowercase hexadecimal with no separators.
func Hex(b []byte) string {
	return hex.EncodeToString(b)
}
