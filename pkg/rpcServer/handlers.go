package rpcServer

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Layr-Labs/agentpay/pkg/orchestrator"
	"github.com/Layr-Labs/agentpay/pkg/spendPower"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

func (rpc *RpcServer) canAct(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CanActRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := rpc.orchestrator.CanAct(r.Context(), &req)
	if err != nil {
		rpc.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rpc *RpcServer) execute(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.ExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := rpc.orchestrator.Execute(r.Context(), &req)
	if err != nil {
		rpc.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type freezeRequest struct {
	// defaults to true
	Frozen *bool  `json:"frozen"`
	Reason string `json:"reason"`
}

type freezeResponse struct {
	UserId       string `json:"user_id"`
	Frozen       bool   `json:"frozen"`
	FreezeReason string `json:"freeze_reason,omitempty"`
}

func (rpc *RpcServer) freezeUser(w http.ResponseWriter, r *http.Request) {
	var req freezeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	frozen := true
	if req.Frozen != nil {
		frozen = *req.Frozen
	}
	flags, err := rpc.orchestrator.FreezeUser(r.Context(), chi.URLParam(r, "userId"), frozen, req.Reason)
	if err != nil {
		rpc.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &freezeResponse{
		UserId:       flags.UserId,
		Frozen:       flags.Frozen,
		FreezeReason: flags.FreezeReason,
	})
}

func (rpc *RpcServer) revokeAgent(w http.ResponseWriter, r *http.Request) {
	revoked, err := rpc.orchestrator.RevokeAgent(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "agentId"))
	if err != nil {
		rpc.writeInternalError(w, r, err)
		return
	}
	if !revoked {
		writeError(w, http.StatusNotFound, "agent not found or already revoked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (rpc *RpcServer) listReceipts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}
	list, err := rpc.orchestrator.ListReceipts(r.Context(), chi.URLParam(r, "userId"), limit)
	if err != nil {
		rpc.writeInternalError(w, r, err)
		return
	}
	out := make([]*ReceiptResponse, 0, len(list))
	for _, receipt := range list {
		out = append(out, convertReceipt(receipt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": out})
}

func (rpc *RpcServer) getSpendPower(w http.ResponseWriter, r *http.Request) {
	breakdown, err := rpc.orchestrator.SpendPower(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		if errors.Is(err, spendPower.ErrWalletNotFound) {
			writeError(w, http.StatusNotFound, "no wallet registered for user")
			return
		}
		rpc.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

type registerWalletRequest struct {
	Address string `json:"address"`
}

func (rpc *RpcServer) registerWallet(w http.ResponseWriter, r *http.Request) {
	var req registerWalletRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	wallet, err := rpc.orchestrator.RegisterWallet(r.Context(), chi.URLParam(r, "userId"), req.Address)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rpc.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id": wallet.UserId,
		"address": wallet.Address,
	})
}

type createAgentRequest struct {
	Scopes json.RawMessage `json:"scopes"`
}

type agentResponse struct {
	AgentId string          `json:"agent_id"`
	UserId  string          `json:"user_id"`
	Status  string          `json:"status"`
	Scopes  json.RawMessage `json:"scopes"`
}

func (rpc *RpcServer) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agent, err := rpc.orchestrator.CreateAgent(r.Context(), chi.URLParam(r, "userId"), string(req.Scopes))
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidScopes) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rpc.writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &agentResponse{
		AgentId: agent.AgentId,
		UserId:  agent.UserId,
		Status:  agent.Status,
		Scopes:  json.RawMessage(agent.Scopes),
	})
}
