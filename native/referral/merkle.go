package referral

import (
	"bytes"
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ecmstaking/crypto"
)

// LeafEntry is one commission payout inside a Merkle distribution.
type LeafEntry struct {
	Index   uint64
	Account crypto.Address
	Amount  *big.Int
}

// leafHash commits to (index, account, amount): 8-byte big-endian index,
// 20-byte address, 32-byte big-endian amount.
func leafHash(entry LeafEntry) [32]byte {
	buf := make([]byte, 0, 8+20+32)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], entry.Index)
	buf = append(buf, idx[:]...)
	buf = append(buf, entry.Account.Bytes()...)
	amount := entry.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	buf = append(buf, amount.FillBytes(make([]byte, 32))...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// hashPair combines two nodes with the smaller hash first, so proofs need no
// left/right flags.
func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(a[:], b[:]))
	return out
}

// BuildTree computes the Merkle root over the entries plus, per entry, the
// sibling path proving its inclusion. An odd node at any level is promoted
// unchanged.
func BuildTree(entries []LeafEntry) ([32]byte, map[uint64][][32]byte) {
	proofs := make(map[uint64][][32]byte, len(entries))
	if len(entries) == 0 {
		return [32]byte{}, proofs
	}

	level := make([][32]byte, len(entries))
	// positions[i] tracks which entries sit under node i of the current level.
	positions := make([][]uint64, len(entries))
	for i, entry := range entries {
		level[i] = leafHash(entry)
		positions[i] = []uint64{entry.Index}
		proofs[entry.Index] = nil
	}

	for len(level) > 1 {
		nextLevel := make([][32]byte, 0, (len(level)+1)/2)
		nextPositions := make([][]uint64, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				nextLevel = append(nextLevel, level[i])
				nextPositions = append(nextPositions, positions[i])
				continue
			}
			for _, idx := range positions[i] {
				proofs[idx] = append(proofs[idx], level[i+1])
			}
			for _, idx := range positions[i+1] {
				proofs[idx] = append(proofs[idx], level[i])
			}
			nextLevel = append(nextLevel, hashPair(level[i], level[i+1]))
			nextPositions = append(nextPositions, append(positions[i], positions[i+1]...))
		}
		level = nextLevel
		positions = nextPositions
	}
	return level[0], proofs
}

// VerifyProof checks an inclusion proof against the distribution root.
func VerifyProof(root [32]byte, entry LeafEntry, proof [][32]byte) bool {
	node := leafHash(entry)
	for _, sibling := range proof {
		node = hashPair(node, sibling)
	}
	return node == root
}
