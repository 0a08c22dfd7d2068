package handlers

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/blockchain/state"
	"github.com/meridian-chain/meridian/foundation/events"
	"go.uber.org/zap"
)

// validate holds the settings and caches for validating request payloads.
var validate = validator.New()

// handlers manages the set of node endpoints.
type handlers struct {
	log   *zap.SugaredLogger
	state *state.State
	evts  *events.Hub[string]
	ws    websocket.Upgrader
}

// genesis returns the genesis information.
func (h handlers) genesis(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.state.Genesis())
}

// status returns the node's current position on the chain.
func (h handlers) status(w http.ResponseWriter, r *http.Request) {
	head := h.state.Head()

	respond(w, http.StatusOK, statusInfo{
		HeadHash:     head.Hash().String(),
		Height:       head.Header.Height,
		AccountsHash: h.state.AccountsHash().String(),
		MempoolCount: h.state.MempoolCount(),
		Mining:       h.state.IsMining(),
	})
}

// account returns the balance and nonce for an address.
func (h handlers) account(w http.ResponseWriter, r *http.Request) {
	params := httptreemux.ContextParams(r.Context())

	addr, err := database.ToAddress(params["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	account, err := h.state.Account(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respond(w, http.StatusOK, accountInfo{
		Address: addr.String(),
		Balance: account.Balance,
		Nonce:   account.Nonce,
	})
}

// block returns a stored block by hash.
func (h handlers) block(w http.ResponseWriter, r *http.Request) {
	params := httptreemux.ContextParams(r.Context())

	hash, err := database.ToHash(params["hash"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	block, err := h.state.RetrieveBlock(hash)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if block == nil {
		http.NotFound(w, r)
		return
	}

	respond(w, http.StatusOK, toBlockInfo(*block))
}

// mempool returns the set of uncommitted transactions.
func (h handlers) mempool(w http.ResponseWriter, r *http.Request) {
	txs := h.state.Mempool()

	infos := make([]txInfo, 0, len(txs))
	for _, tx := range txs {
		infos = append(infos, txInfo{
			Sender:    tx.Sender().String(),
			Recipient: tx.Recipient.String(),
			Value:     tx.Value,
			Fee:       tx.Fee,
			Nonce:     tx.Nonce,
		})
	}

	respond(w, http.StatusOK, infos)
}

// submitTransaction adds a new transaction to the mempool.
func (h handlers) submitTransaction(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.NewString()

	var payload submitTx
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(payload); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := payload.toTx()
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	h.log.Infow("submit tran", "traceid", traceID, "tx", tx.String(), "value", tx.Value, "fee", tx.Fee)

	result, err := h.state.SubmitTransaction(tx)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	respond(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: result.String()})
}

// submitBlock ingests a block received from a peer.
func (h handlers) submitBlock(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.NewString()

	var payload submitBlock
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(payload); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	data, err := hex.DecodeString(payload.Block)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	block, err := database.DeserializeBlock(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	h.log.Infow("submit block", "traceid", traceID, "block", block.Hash().String(), "height", block.Header.Height)

	result, err := h.state.ProcessBlock(block)
	if err != nil {
		h.log.Infow("submit block", "traceid", traceID, "ERROR", err)
	}

	respond(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: result.String()})
}

// eventFeed handles a web socket to provide events to a client.
func (h handlers) eventFeed(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.NewString()

	h.ws.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.ws.Upgrade(w, r, nil)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	defer c.Close()

	ch := h.evts.Acquire(traceID)
	defer h.evts.Release(traceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

// =============================================================================

// respond converts a Go value to JSON and sends it to the client.
func respond(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response to the client.
func respondError(w http.ResponseWriter, statusCode int, err error) {
	respond(w, statusCode, struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}
