// Package accounts applies and reverts block bodies against the
// authenticated accounts tree. It owns the business rules for how a
// transaction and the miner reward move balances.
package accounts

import (
	"errors"
	"fmt"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/blockchain/genesis"
	"github.com/meridian-chain/meridian/foundation/blockchain/trie"
	"github.com/meridian-chain/meridian/foundation/kvstore"
)

// Error categories returned from applying bodies.
var (
	// ErrInvalidTx is returned when a transaction cannot be applied to the
	// current state: bad signature, nonce mismatch, insufficient balance,
	// or a self transfer.
	ErrInvalidTx = errors.New("invalid transaction")

	// ErrAccountsMismatch is returned when the state after applying a body
	// does not match the commitment the block header carries.
	ErrAccountsMismatch = errors.New("accounts hash mismatch")
)

// Accounts is the façade over the accounts tree that the chain and the
// miner use to mutate and inspect balance state.
type Accounts struct {
	tree    *trie.Tree
	genesis genesis.Genesis
}

// New constructs the accounts façade over the specified tree.
func New(tree *trie.Tree, genesis genesis.Genesis) *Accounts {
	return &Accounts{
		tree:    tree,
		genesis: genesis,
	}
}

// Get returns the account for the address at the current state.
func (a *Accounts) Get(addr database.Address) (database.Account, error) {
	return a.tree.Get(addr)
}

// Hash returns the commitment to the full current account state.
func (a *Accounts) Hash() database.Hash {
	return a.tree.Hash()
}

// Begin opens a session holding a tree transaction. All body applications
// inside the session are buffered until Commit.
func (a *Accounts) Begin() (*Session, error) {
	tx, err := a.tree.Transaction()
	if err != nil {
		return nil, err
	}

	return &Session{tree: tx, genesis: a.genesis}, nil
}

// CommitBlockBody applies the body at the specified height and publishes
// the result, but only if the resulting state matches the expected
// commitment. On any failure the state is untouched.
func (a *Accounts) CommitBlockBody(body database.BlockBody, height uint32, expected database.Hash) error {
	session, err := a.Begin()
	if err != nil {
		return err
	}

	if err := session.ApplyBody(body, height); err != nil {
		session.Abort()
		return err
	}

	if session.Hash() != expected {
		session.Abort()
		return fmt.Errorf("%w: got %s, exp %s", ErrAccountsMismatch, session.Hash(), expected)
	}

	return session.Commit()
}

// RevertBlockBody undoes the body at the specified height and publishes
// the result. Reverting the most recently applied body restores the prior
// state bit for bit.
func (a *Accounts) RevertBlockBody(body database.BlockBody, height uint32) error {
	session, err := a.Begin()
	if err != nil {
		return err
	}

	if err := session.RevertBody(body, height); err != nil {
		session.Abort()
		return err
	}

	return session.Commit()
}

// =============================================================================

// Session scopes a sequence of body applications over one tree
// transaction so a rebranch can move the state through many blocks and
// publish or discard the whole walk atomically.
type Session struct {
	tree    *trie.Tree
	genesis genesis.Genesis
}

// Get returns the account for the address as the session currently
// sees it.
func (s *Session) Get(addr database.Address) (database.Account, error) {
	return s.tree.Get(addr)
}

// Hash returns the commitment to the session's current state.
func (s *Session) Hash() database.Hash {
	return s.tree.Hash()
}

// Commit publishes every buffered change to the underlying tree.
func (s *Session) Commit() error {
	return s.tree.Commit()
}

// CommitInto stages every buffered change into the specified KV
// transaction for a caller-bundled atomic commit.
func (s *Session) CommitInto(tx kvstore.Tx) error {
	return s.tree.CommitInto(tx)
}

// Abort discards every buffered change.
func (s *Session) Abort() {
	s.tree.Abort()
}

// ApplyBody moves the session state forward over the body's transactions
// in canonical order and credits the miner.
func (s *Session) ApplyBody(body database.BlockBody, height uint32) error {
	for _, tx := range body.Transactions {
		if err := s.applyTx(tx); err != nil {
			return err
		}
	}

	miner, err := s.tree.Get(body.MinerAddress)
	if err != nil {
		return err
	}
	miner.Balance += s.genesis.BlockReward(height) + body.Fees()

	return s.tree.Put(body.MinerAddress, miner)
}

// RevertBody is the exact inverse of ApplyBody: it debits the miner and
// undoes the transactions in reverse order.
func (s *Session) RevertBody(body database.BlockBody, height uint32) error {
	reward := s.genesis.BlockReward(height) + body.Fees()

	miner, err := s.tree.Get(body.MinerAddress)
	if err != nil {
		return err
	}
	if miner.Balance < reward {
		return fmt.Errorf("%w: miner balance below reward", ErrInvalidTx)
	}
	miner.Balance -= reward
	if err := s.tree.Put(body.MinerAddress, miner); err != nil {
		return err
	}

	for i := len(body.Transactions) - 1; i >= 0; i-- {
		if err := s.revertTx(body.Transactions[i]); err != nil {
			return err
		}
	}

	return nil
}

// applyTx debits the sender by value plus fee, bumps the sender nonce,
// and credits the recipient.
func (s *Session) applyTx(tx database.Tx) error {
	if !tx.VerifySignature() {
		return fmt.Errorf("%w: bad signature", ErrInvalidTx)
	}

	sender := tx.Sender()
	if sender == tx.Recipient {
		return fmt.Errorf("%w: sender and recipient are the same", ErrInvalidTx)
	}

	acct, err := s.tree.Get(sender)
	if err != nil {
		return err
	}

	if tx.Nonce != acct.Nonce {
		return fmt.Errorf("%w: nonce mismatch, got %d, exp %d", ErrInvalidTx, tx.Nonce, acct.Nonce)
	}

	total := tx.Value + tx.Fee
	if total < tx.Value || acct.Balance < total {
		return fmt.Errorf("%w: insufficient funds, bal %d, needed %d", ErrInvalidTx, acct.Balance, total)
	}

	acct.Balance -= total
	acct.Nonce++
	if err := s.tree.Put(sender, acct); err != nil {
		return err
	}

	recipient, err := s.tree.Get(tx.Recipient)
	if err != nil {
		return err
	}
	recipient.Balance += tx.Value

	return s.tree.Put(tx.Recipient, recipient)
}

// revertTx undoes applyTx.
func (s *Session) revertTx(tx database.Tx) error {
	recipient, err := s.tree.Get(tx.Recipient)
	if err != nil {
		return err
	}
	if recipient.Balance < tx.Value {
		return fmt.Errorf("%w: recipient balance below value", ErrInvalidTx)
	}
	recipient.Balance -= tx.Value
	if err := s.tree.Put(tx.Recipient, recipient); err != nil {
		return err
	}

	sender := tx.Sender()
	acct, err := s.tree.Get(sender)
	if err != nil {
		return err
	}
	acct.Balance += tx.Value + tx.Fee
	acct.Nonce--

	return s.tree.Put(sender, acct)
}
