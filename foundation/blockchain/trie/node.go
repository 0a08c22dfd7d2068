// Package trie implements the authenticated accounts tree: a radix-16
// patricia trie with path compression keyed by the hex nibbles of account
// addresses. Every node is stored by the hash of its canonical
// serialization, and the root hash is the commitment carried in block
// headers as the accountsHash.
package trie

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
)

// Node kind markers in the canonical serialization.
const (
	kindBranch   byte = 0x00
	kindTerminal byte = 0xff
)

// keyLen is the number of nibbles in a full key: two per address byte.
const keyLen = 2 * signature.AddressLen

// child references a subtree from a branch: the nibble path from the
// branch to the child and the child node's hash.
type child struct {
	suffix string
	hash   database.Hash
}

// node is either a branch or a terminal of the tree. Every node stores its
// full nibble prefix from the root, which makes each serialized node unique
// to its position and lets content addressing double as identity.
type node struct {
	kind     byte
	prefix   string
	account  database.Account
	children [16]*child
}

func newTerminal(prefix string, account database.Account) *node {
	return &node{kind: kindTerminal, prefix: prefix, account: account}
}

func newBranch(prefix string) *node {
	return &node{kind: kindBranch, prefix: prefix}
}

// childCount returns the number of populated child slots.
func (n *node) childCount() int {
	count := 0
	for _, c := range n.children {
		if c != nil {
			count++
		}
	}
	return count
}

// singleChild returns the only populated child slot. Callers check
// childCount first.
func (n *node) singleChild() *child {
	for _, c := range n.children {
		if c != nil {
			return c
		}
	}
	return nil
}

// clone returns a copy of the branch that can be mutated without
// disturbing the stored original.
func (n *node) clone() *node {
	cp := &node{kind: n.kind, prefix: n.prefix, account: n.account}
	for i, c := range n.children {
		if c != nil {
			cc := *c
			cp.children[i] = &cc
		}
	}
	return cp
}

// serialize returns the canonical encoding of the node. Children are
// emitted in nibble order, so any two nodes with the same logical content
// serialize identically.
func (n *node) serialize() []byte {
	buf := []byte{n.kind, byte(len(n.prefix))}
	buf = append(buf, n.prefix...)

	if n.kind == kindTerminal {
		return append(buf, n.account.Serialize()...)
	}

	buf = append(buf, byte(n.childCount()))
	for i, c := range n.children {
		if c == nil {
			continue
		}
		buf = append(buf, byte(i), byte(len(c.suffix)))
		buf = append(buf, c.suffix...)
		buf = append(buf, c.hash[:]...)
	}

	return buf
}

// hash returns the node's identity: the digest of its serialization.
func (n *node) hash() database.Hash {
	return signature.HashData(n.serialize())
}

// deserializeNode decodes a node from its canonical encoding.
func deserializeNode(data []byte) (*node, error) {
	if len(data) < 2 {
		return nil, errors.New("short tree node")
	}

	kind := data[0]
	prefixLen := int(data[1])
	if len(data) < 2+prefixLen {
		return nil, errors.New("short tree node")
	}

	n := &node{kind: kind, prefix: string(data[2 : 2+prefixLen])}
	rest := data[2+prefixLen:]

	switch kind {
	case kindTerminal:
		account, err := database.DeserializeAccount(rest)
		if err != nil {
			return nil, err
		}
		n.account = account

	case kindBranch:
		if len(rest) < 1 {
			return nil, errors.New("short tree node")
		}
		count := int(rest[0])
		rest = rest[1:]
		for i := 0; i < count; i++ {
			if len(rest) < 2 {
				return nil, errors.New("short tree node")
			}
			nibble := int(rest[0])
			suffixLen := int(rest[1])
			if nibble > 15 || len(rest) < 2+suffixLen+signature.HashLen {
				return nil, errors.New("malformed tree node")
			}
			c := child{suffix: string(rest[2 : 2+suffixLen])}
			copy(c.hash[:], rest[2+suffixLen:])
			n.children[nibble] = &c
			rest = rest[2+suffixLen+signature.HashLen:]
		}

	default:
		return nil, fmt.Errorf("unknown tree node kind 0x%02x", kind)
	}

	return n, nil
}

// =============================================================================

// addressKey converts an address to its 40 nibble key.
func addressKey(addr database.Address) string {
	return hex.EncodeToString(addr[:])
}

// nibbleIndex returns the child slot for the first nibble of a key
// remainder.
func nibbleIndex(s string) int {
	b, _ := hex.DecodeString("0" + s[:1])
	return int(b[0])
}

// commonPrefix returns the longest shared leading run of two nibble
// strings.
func commonPrefix(a, b string) string {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	i := 0
	for i < max && a[i] == b[i] {
		i++
	}
	return a[:i]
}
