package trie

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/kvstore"
)

// ErrTxBusy is returned when a tree already has an open transaction and a
// caller attempts a write or a second transaction. The tree is single
// writer: all mutations flow through one overlay at a time.
var ErrTxBusy = errors.New("accounts tree transaction in progress")

// Tree is the authenticated accounts tree. A Tree constructed by New works
// directly against the KV store; a Tree returned by Transaction buffers all
// writes until Commit publishes them atomically.
type Tree struct {
	mu       sync.Mutex
	store    nodeStore
	kv       kvstore.Store
	rootHash database.Hash
	parent   *Tree
	overlay  *overlayStore
	txOpen   bool
}

// New constructs the accounts tree over the specified KV store, creating
// the empty root when the store holds no tree yet.
func New(kv kvstore.Store) (*Tree, error) {
	t := Tree{
		store: &kvNodeStore{kv: kv},
		kv:    kv,
	}

	data, err := kv.Get([]byte(rootKey))
	if err != nil {
		return nil, fmt.Errorf("tree root read: %w", err)
	}

	if data != nil {
		copy(t.rootHash[:], data)
		return &t, nil
	}

	// First use: persist the empty root so the empty tree has a stable,
	// well defined hash.
	root := newBranch("")
	hash, err := t.store.putNode(root)
	if err != nil {
		return nil, err
	}
	if err := kv.Put([]byte(rootKey), hash[:]); err != nil {
		return nil, fmt.Errorf("tree root write: %w", err)
	}

	t.rootHash = hash
	return &t, nil
}

// Hash returns the root hash: the commitment to the full account state.
func (t *Tree) Hash() database.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.rootHash
}

// Get returns the account stored for the address. An address the tree does
// not hold returns the zero account.
func (t *Tree) Get(addr database.Address) (database.Account, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := addressKey(addr)

	n, err := t.store.getNode(t.rootHash)
	if err != nil {
		return database.Account{}, err
	}

	for {
		if n.kind == kindTerminal {
			if n.prefix == key {
				return n.account, nil
			}
			return database.Account{}, nil
		}

		rem := key[len(n.prefix):]
		c := n.children[nibbleIndex(rem)]
		if c == nil || !strings.HasPrefix(rem, c.suffix) {
			return database.Account{}, nil
		}

		if n, err = t.store.getNode(c.hash); err != nil {
			return database.Account{}, err
		}
	}
}

// Put inserts or replaces the account for the address. Storing the zero
// account removes the address so pruned and never-written addresses hash
// identically.
func (t *Tree) Put(addr database.Address, account database.Account) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.txOpen {
		return ErrTxBusy
	}

	root, err := t.store.getNode(t.rootHash)
	if err != nil {
		return err
	}

	repl, changed, err := t.update(root, addressKey(addr), account, account.IsZero())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	t.rootHash = repl.hash()

	// A base tree publishes the new root immediately. An overlay keeps it
	// buffered until Commit.
	if t.kv != nil {
		if err := t.kv.Put([]byte(rootKey), t.rootHash[:]); err != nil {
			return fmt.Errorf("tree root write: %w", err)
		}
	}

	return nil
}

// Transaction opens a scoped overlay over this tree. All writes on the
// returned tree are buffered; Commit publishes them atomically and Abort
// discards them. While the transaction is open the parent rejects writes
// and further transactions with ErrTxBusy.
func (t *Tree) Transaction() (*Tree, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.txOpen {
		return nil, ErrTxBusy
	}
	t.txOpen = true

	ov := newOverlayStore(t.store)
	return &Tree{
		store:    ov,
		overlay:  ov,
		rootHash: t.rootHash,
		parent:   t,
	}, nil
}

// Commit atomically publishes every buffered write and the new root to the
// parent tree. Committing a tree that is not a transaction is an error.
func (t *Tree) Commit() error {
	if t.parent == nil {
		return errors.New("commit on a non-transaction tree")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.parent
	parent.mu.Lock()
	defer parent.mu.Unlock()

	if parent.kv == nil {
		// Nested transaction: fold the buffered changes into the parent
		// overlay in memory.
		for _, n := range t.overlay.writes {
			if _, err := parent.store.putNode(n); err != nil {
				return err
			}
		}
		for hash := range t.overlay.deletes {
			if err := parent.store.delNode(hash); err != nil {
				return err
			}
		}
	} else {
		tx, err := parent.kv.BeginTx()
		if err != nil {
			return fmt.Errorf("tree commit: %w", err)
		}
		if err := t.overlay.flush(tx, t.rootHash); err != nil {
			tx.Abort()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tree commit: %w", err)
		}
	}

	parent.rootHash = t.rootHash
	parent.txOpen = false
	t.parent = nil

	return nil
}

// CommitInto stages every buffered write and the new root into the
// specified KV transaction so the caller can bundle the tree mutation with
// other writes in one atomic commit. The parent tree's in-memory root
// advances; the caller must commit the transaction or halt on its failure.
func (t *Tree) CommitInto(tx kvstore.Tx) error {
	if t.parent == nil {
		return errors.New("commit on a non-transaction tree")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.parent
	parent.mu.Lock()
	defer parent.mu.Unlock()

	if parent.kv == nil {
		return errors.New("commit-into on a nested transaction")
	}

	if err := t.overlay.flush(tx, t.rootHash); err != nil {
		return err
	}

	parent.rootHash = t.rootHash
	parent.txOpen = false
	t.parent = nil

	return nil
}

// Abort discards every buffered write and releases the parent for new
// transactions. Abort on an already closed transaction is a no-op.
func (t *Tree) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.parent == nil {
		return
	}

	parent := t.parent
	parent.mu.Lock()
	parent.txOpen = false
	parent.mu.Unlock()

	t.parent = nil
	t.overlay = nil
	t.store = nil
}

// =============================================================================

// update descends to the key and returns the node that replaces n, whether
// anything changed, and stores/deletes the nodes it touches along the way.
// A nil replacement means n was removed entirely.
func (t *Tree) update(n *node, key string, account database.Account, del bool) (*node, bool, error) {
	if n.kind == kindTerminal {
		return t.updateTerminal(n, key, account, del)
	}

	rem := key[len(n.prefix):]
	idx := nibbleIndex(rem)
	c := n.children[idx]

	// No child on this nibble: nothing to delete, or a fresh terminal.
	if c == nil {
		if del {
			return n, false, nil
		}

		nt := newTerminal(key, account)
		hash, err := t.store.putNode(nt)
		if err != nil {
			return nil, false, err
		}

		nb := n.clone()
		nb.children[idx] = &child{suffix: rem, hash: hash}
		return t.replace(n, nb)
	}

	// Full suffix match: descend into the child.
	if strings.HasPrefix(rem, c.suffix) {
		childNode, err := t.store.getNode(c.hash)
		if err != nil {
			return nil, false, err
		}

		repl, changed, err := t.update(childNode, key, account, del)
		if err != nil || !changed {
			return n, changed, err
		}

		if repl == nil {
			return t.dropChild(n, idx)
		}

		nb := n.clone()
		nb.children[idx] = &child{suffix: repl.prefix[len(n.prefix):], hash: repl.hash()}
		return t.replace(n, nb)
	}

	// Partial suffix match: the path to the child diverges from the key.
	if del {
		return n, false, nil
	}

	cp := commonPrefix(rem, c.suffix)
	mid := newBranch(n.prefix + cp)
	mid.children[nibbleIndex(c.suffix[len(cp):])] = &child{suffix: c.suffix[len(cp):], hash: c.hash}

	nt := newTerminal(key, account)
	ntHash, err := t.store.putNode(nt)
	if err != nil {
		return nil, false, err
	}
	mid.children[nibbleIndex(key[len(mid.prefix):])] = &child{suffix: key[len(mid.prefix):], hash: ntHash}

	midHash, err := t.store.putNode(mid)
	if err != nil {
		return nil, false, err
	}

	nb := n.clone()
	nb.children[idx] = &child{suffix: cp, hash: midHash}
	return t.replace(n, nb)
}

// updateTerminal handles the leaf cases: replace in place, remove, or
// split into a branch when the keys diverge.
func (t *Tree) updateTerminal(n *node, key string, account database.Account, del bool) (*node, bool, error) {
	if n.prefix == key {
		if del {
			if err := t.store.delNode(n.hash()); err != nil {
				return nil, false, err
			}
			return nil, true, nil
		}
		if n.account == account {
			return n, false, nil
		}
		return t.replace(n, newTerminal(key, account))
	}

	if del {
		return n, false, nil
	}

	// Split: a branch at the longest common prefix holds the existing
	// terminal and the new one. The existing node is unchanged and stays
	// stored under its hash.
	cp := commonPrefix(n.prefix, key)
	br := newBranch(cp)
	br.children[nibbleIndex(n.prefix[len(cp):])] = &child{suffix: n.prefix[len(cp):], hash: n.hash()}

	nt := newTerminal(key, account)
	ntHash, err := t.store.putNode(nt)
	if err != nil {
		return nil, false, err
	}
	br.children[nibbleIndex(key[len(cp):])] = &child{suffix: key[len(cp):], hash: ntHash}

	if _, err := t.store.putNode(br); err != nil {
		return nil, false, err
	}

	return br, true, nil
}

// dropChild removes a child slot from a branch, dissolving the branch when
// fewer than two children remain. The root branch is exempt: it persists
// at any child count so the empty tree keeps a stable hash.
func (t *Tree) dropChild(n *node, idx int) (*node, bool, error) {
	nb := n.clone()
	nb.children[idx] = nil

	if nb.prefix != "" {
		switch nb.childCount() {
		case 0:
			if err := t.store.delNode(n.hash()); err != nil {
				return nil, false, err
			}
			return nil, true, nil

		case 1:
			// One child left: the branch dissolves and the caller points
			// directly at the surviving subtree.
			if err := t.store.delNode(n.hash()); err != nil {
				return nil, false, err
			}
			rc := nb.singleChild()
			survivor, err := t.store.getNode(rc.hash)
			if err != nil {
				return nil, false, err
			}
			return survivor, true, nil
		}
	}

	return t.replace(n, nb)
}

// replace stores the new version of a node and deletes the old one.
func (t *Tree) replace(old, repl *node) (*node, bool, error) {
	if err := t.store.delNode(old.hash()); err != nil {
		return nil, false, err
	}
	if _, err := t.store.putNode(repl); err != nil {
		return nil, false, err
	}
	return repl, true, nil
}
