package handlers

import (
	"encoding/hex"
	"fmt"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
)

// submitTx is the payload for submitting a transaction. Every byte field
// travels hex encoded.
type submitTx struct {
	SenderPubKey string `json:"sender_pub_key" validate:"required,len=64,hexadecimal"`
	Recipient    string `json:"recipient" validate:"required,len=40,hexadecimal"`
	Value        uint64 `json:"value" validate:"required"`
	Fee          uint64 `json:"fee"`
	Nonce        uint32 `json:"nonce"`
	Signature    string `json:"signature" validate:"required,len=128,hexadecimal"`
}

// toTx converts the payload into the wire transaction.
func (st submitTx) toTx() (database.Tx, error) {
	var tx database.Tx

	pub, err := hex.DecodeString(st.SenderPubKey)
	if err != nil {
		return database.Tx{}, fmt.Errorf("sender public key: %w", err)
	}
	copy(tx.SenderPubKey[:], pub)

	recipient, err := database.ToAddress(st.Recipient)
	if err != nil {
		return database.Tx{}, fmt.Errorf("recipient: %w", err)
	}
	tx.Recipient = recipient

	sig, err := hex.DecodeString(st.Signature)
	if err != nil {
		return database.Tx{}, fmt.Errorf("signature: %w", err)
	}
	copy(tx.Signature[:], sig)

	tx.Value = st.Value
	tx.Fee = st.Fee
	tx.Nonce = st.Nonce

	return tx, nil
}

// submitBlock is the payload for submitting a peer block: the full wire
// encoding, hex encoded.
type submitBlock struct {
	Block string `json:"block" validate:"required,hexadecimal"`
}

// txInfo is the view of a pending transaction.
type txInfo struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Value     uint64 `json:"value"`
	Fee       uint64 `json:"fee"`
	Nonce     uint32 `json:"nonce"`
}

// accountInfo is the view of an account.
type accountInfo struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint32 `json:"nonce"`
}

// statusInfo is the view of the node's current position.
type statusInfo struct {
	HeadHash     string `json:"head_hash"`
	Height       uint32 `json:"height"`
	AccountsHash string `json:"accounts_hash"`
	MempoolCount int    `json:"mempool_count"`
	Mining       bool   `json:"mining"`
}

// blockInfo is the view of a stored block.
type blockInfo struct {
	Hash         string   `json:"hash"`
	PrevHash     string   `json:"prev_hash"`
	Height       uint32   `json:"height"`
	TimeStamp    uint32   `json:"timestamp"`
	NBits        uint32   `json:"nbits"`
	Nonce        uint32   `json:"nonce"`
	AccountsHash string   `json:"accounts_hash"`
	MinerAddress string   `json:"miner_address,omitempty"`
	Transactions []txInfo `json:"transactions,omitempty"`
}

func toBlockInfo(block database.Block) blockInfo {
	bi := blockInfo{
		Hash:         block.Hash().String(),
		PrevHash:     block.Header.PrevHash.String(),
		Height:       block.Header.Height,
		TimeStamp:    block.Header.TimeStamp,
		NBits:        block.Header.NBits,
		Nonce:        block.Header.Nonce,
		AccountsHash: block.Header.AccountsHash.String(),
	}

	if block.Body != nil {
		bi.MinerAddress = block.Body.MinerAddress.String()
		for _, tx := range block.Body.Transactions {
			bi.Transactions = append(bi.Transactions, txInfo{
				Sender:    tx.Sender().String(),
				Recipient: tx.Recipient.String(),
				Value:     tx.Value,
				Fee:       tx.Fee,
				Nonce:     tx.Nonce,
			})
		}
	}

	return bi
}
