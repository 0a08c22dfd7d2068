// Package handlers defines the routes and handlers of the node's v1 API.
package handlers

import (
	"net/http"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/gorilla/websocket"
	"github.com/meridian-chain/meridian/foundation/blockchain/state"
	"github.com/meridian-chain/meridian/foundation/events"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Hub[string]
}

// PublicMux constructs a http.Handler with all application routes defined.
func PublicMux(cfg MuxConfig) http.Handler {
	mux := httptreemux.NewContextMux()

	hdl := handlers{
		log:   cfg.Log,
		state: cfg.State,
		evts:  cfg.Evts,
		ws:    websocket.Upgrader{},
	}

	mux.GET("/v1/genesis", hdl.genesis)
	mux.GET("/v1/node/status", hdl.status)
	mux.GET("/v1/accounts/:address", hdl.account)
	mux.GET("/v1/blocks/:hash", hdl.block)
	mux.GET("/v1/tx/uncommitted", hdl.mempool)
	mux.POST("/v1/tx/submit", hdl.submitTransaction)
	mux.POST("/v1/blocks/submit", hdl.submitBlock)
	mux.GET("/v1/events", hdl.eventFeed)

	return mux
}
