// Package blockhash maps an object path and block coordinates to a stable,
// purely-deterministic filesystem identity: a two-level shard prefix plus a
// per-block filename. It names local files, not security boundaries, so the
// hash has no cryptographic requirement.
package blockhash

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hash is the result of hashing an object path. Dir1 and Dir2 are the two
// 2-hex-char shard segments of a 3-level sharded directory tree; Prefix is
// the 2-hex-char filename prefix; FullName is Prefix followed by the
// ".fb{block_size}-{block_num}" trailer that makes the filename unique per
// block.
type Hash struct {
	Dir1     string
	Dir2     string
	Prefix   string
	FullName string
}

// Compute computes the block identity for (path, blockSize, blockNum).
//
// The digest is XXH64 seeded with 0 over the raw path bytes, rendered as 16
// lowercase hex characters of the digest's little-endian byte encoding.
// block_size and block_num are not hashed — they only appear in the
// filename trailer, mirroring the upstream construction this is grounded
// on. This is a deliberate substitution for the 64-bit xxh3 the original
// calls for: no xxh3 implementation is present anywhere in this project's
// dependency surface, and cespare/xxhash/v2 is already pulled in
// transitively. Both are non-cryptographic, stable, 64-bit digests, so the
// substitution is invisible to callers.
func Compute(path []byte, blockSize uint32, blockNum uint16) Hash {
	digest := xxhash.Sum64(path)

	var buf [8]byte
	for i := range buf {
		buf[i] = byte(digest >> (8 * uint(i)))
	}
	hexStr := hexEncode(buf[:])

	trailer := fmt.Sprintf(".fb%d-%d", blockSize, blockNum)

	return Hash{
		Dir1:     hexStr[0:2],
		Dir2:     hexStr[2:4],
		Prefix:   hexStr[4:6],
		FullName: hexStr[4:6] + trailer,
	}
}

// Key returns the block store key ("dir1/dir2/full_name") for (path,
// blockSize, blockNum), the form callers pass straight to a block.Store.
func Key(path []byte, blockSize uint32, blockNum uint16) string {
	h := Compute(path, blockSize, blockNum)
	return h.Dir1 + "/" + h.Dir2 + "/" + h.FullName
}

// Prefix returns "dir1/dir2/prefix" for path, with no block-size/block-num
// trailer. The digest never depends on block_size or block_num, so this
// prefix matches every block file ever written for path regardless of the
// block size in effect when each one was created — exactly the set
// DeleteByPrefix must remove on invalidation.
func Prefix(path []byte) string {
	h := Compute(path, 0, 0)
	return h.Dir1 + "/" + h.Dir2 + "/" + h.Prefix
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
