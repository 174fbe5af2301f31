package storage

import "golang.org/x/crypto/blake2b"

// checksumData returns the BLAKE2b-256 digest of a page's data segment.
// Page.Serialize stores it; Page.Deserialize recomputes and compares it so a
// corrupted or torn page image is caught on load instead of handed silently
// up to the table layer.
func checksumData(data []byte) [checksumSize]byte {
	return blake2b.Sum256(data)
}
