// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/codachain/node/business/web/errs"
	"github.com/codachain/node/foundation/chain/archive"
	"github.com/codachain/node/foundation/chain/ledger"
	"github.com/codachain/node/foundation/chain/state"
	"github.com/codachain/node/foundation/web"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip := h.State.Tip()

	status := struct {
		TipHash     string `json:"tip_hash"`
		Length      uint64 `json:"length"`
		Mechanism   string `json:"mechanism"`
		Beneficiary string `json:"beneficiary"`
		Uncommitted int    `json:"uncommitted"`
	}{
		TipHash:     tip.Hash(),
		Length:      tip.Consensus.Length,
		Mechanism:   h.State.MechanismName(),
		Beneficiary: h.State.Beneficiary(),
		Uncommitted: h.State.MempoolCount(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Transitions returns up to count archived transitions walking back from
// the tip, newest first.
func (h Handlers) Transitions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	countStr := web.Param(r, "count")

	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		return errs.NewTrusted(errors.New("count must be a positive integer"), http.StatusBadRequest)
	}

	recs, err := h.State.Transitions(count)
	if err != nil {
		return fmt.Errorf("unable to read transitions: %w", err)
	}

	if len(recs) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, recs, http.StatusOK)
}

// ProposeTransition takes a transition received from a peer, validates it
// and if that passes, adopts it as the new tip.
func (h Handlers) ProposeTransition(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var rec archive.Record
	if err := web.Decode(r, &rec); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if err := h.State.ProcessTransition(rec); err != nil {
		h.Log.Infow("transition rejected", "hash", rec.State.Hash(), "ERROR", err)
		return errs.NewTrusted(errors.New("transition not accepted"), http.StatusNotAcceptable)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitTransaction adds a transaction forwarded by a peer to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx ledger.Tx
	if err := web.Decode(r, &tx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add node tran", "traceid", v.TraceID, "from:nonce", tx, "to", tx.To, "value", tx.Value, "fee", tx.Fee)
	if err := h.State.UpsertTransaction(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
