package ledger

import (
	"crypto/sha256"
	"crypto/subtle"
)

// RFC 6962 history tree. Leaf and internal hashes are domain-separated so a
// leaf payload can never be confused with a node pair.

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// LeafHash computes SHA-256(0x00 || payload).
func LeafHash(payload []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write(payload)
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// nodeHash computes SHA-256(0x01 || left || right).
func nodeHash(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// EmptyRoot is the root of the empty tree: SHA-256 of the empty string.
func EmptyRoot() [32]byte {
	return sha256.Sum256(nil)
}

// RootFromLeaves computes MTH over the ordered leaf hashes:
// MTH(D[n]) = H(0x01 || MTH(D[0:k]) || MTH(D[k:n])), k the largest power of
// two smaller than n.
func RootFromLeaves(leaves [][32]byte) [32]byte {
	switch len(leaves) {
	case 0:
		return EmptyRoot()
	case 1:
		return leaves[0]
	}
	k := largestPowerOfTwoBelow(uint64(len(leaves)))
	return nodeHash(RootFromLeaves(leaves[:k]), RootFromLeaves(leaves[k:]))
}

// PathFromLeaves computes the RFC 6962 audit path for leaf index in the
// ordered leaf hash list.
func PathFromLeaves(index uint64, leaves [][32]byte) [][32]byte {
	n := uint64(len(leaves))
	if n <= 1 {
		return nil
	}
	k := largestPowerOfTwoBelow(n)
	if index < k {
		path := PathFromLeaves(index, leaves[:k])
		return append(path, RootFromLeaves(leaves[k:]))
	}
	path := PathFromLeaves(index-k, leaves[k:])
	return append(path, RootFromLeaves(leaves[:k]))
}

// VerifyProof checks an inclusion proof against an expected root using the
// RFC 9162 fold. The final comparison is constant-time; verification cost
// must not leak where a mismatching proof diverges.
func VerifyProof(leafHash [32]byte, proof *Proof, expectedRoot [32]byte) bool {
	if proof == nil || proof.TreeSize == 0 || proof.SeqNo >= proof.TreeSize {
		return false
	}

	fn := proof.SeqNo
	sn := proof.TreeSize - 1
	r := leafHash
	for _, p := range proof.Path {
		if sn == 0 {
			return false
		}
		if fn&1 == 1 || fn == sn {
			r = nodeHash(p, r)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			r = nodeHash(r, p)
		}
		fn >>= 1
		sn >>= 1
	}
	if sn != 0 {
		return false
	}
	return subtle.ConstantTimeCompare(r[:], expectedRoot[:]) == 1
}

func largestPowerOfTwoBelow(n uint64) uint64 {
	k := uint64(1)
	for k<<1 < n {
		k <<= 1
	}
	return k
}
