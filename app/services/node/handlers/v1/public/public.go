// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codachain/node/business/web/errs"
	"github.com/codachain/node/foundation/chain/ledger"
	"github.com/codachain/node/foundation/chain/state"
	"github.com/codachain/node/foundation/events"
	"github.com/codachain/node/foundation/web"
)

// Handlers manages the set of public chain endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
	WS    websocket.Upgrader
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a new user transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx ledger.Tx
	if err := web.Decode(r, &signedTx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "from:nonce", signedTx, "to", signedTx.To, "value", signedTx.Value, "fee", signedTx.Fee)
	if err := h.State.UpsertTransaction(signedTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Tip returns a summary of the current protocol tip.
func (h Handlers) Tip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip := h.State.Tip()

	ti := tipInfo{
		Hash:       tip.Hash(),
		Slot:       tip.Consensus.Slot,
		Mechanism:  h.State.MechanismName(),
		LedgerHash: tip.Blockchain.LedgerHash,
		Difficulty: tip.Consensus.NextDifficulty.Target,
	}

	return web.Respond(ctx, w, ti, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	acct := web.Param(r, "account")

	pool := h.State.Mempool()

	trans := []tx{}
	for _, tran := range pool {
		account, err := tran.FromAddress()
		if err != nil {
			continue
		}

		if acct != "" && acct != account && acct != tran.To {
			continue
		}

		trans = append(trans, tx{
			FromAccount: account,
			To:          tran.To,
			Nonce:       tran.Nonce,
			Value:       tran.Value,
			Fee:         tran.Fee,
		})
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Accounts returns the current balances for all accounts.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")

	var lgrAccounts map[string]ledger.Info
	switch account {
	case "":
		lgrAccounts = h.State.Accounts()

	default:
		lgrInfo, err := h.State.QueryAccount(account)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		lgrAccounts = map[string]ledger.Info{account: lgrInfo}
	}

	acts := make([]info, 0, len(lgrAccounts))
	for account, lgrInfo := range lgrAccounts {
		act := info{
			Account: account,
			Balance: lgrInfo.Balance,
			Nonce:   lgrInfo.Nonce,
		}
		acts = append(acts, act)
	}

	ai := actInfo{
		TipHash:     h.State.Tip().Hash(),
		Uncommitted: h.State.MempoolCount(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}
