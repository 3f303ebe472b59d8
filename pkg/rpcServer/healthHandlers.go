package rpcServer

import (
	"net/http"
	"time"

	"github.com/Layr-Labs/agentpay/internal/version"
	"github.com/Layr-Labs/agentpay/pkg/storage"
)

type healthResponse struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	Commit        string     `json:"commit"`
	ChainId       int64      `json:"chain_id"`
	Freshness     string     `json:"freshness"`
	LastGoodBlock uint64     `json:"last_good_block,omitempty"`
	HeadBlockTime *time.Time `json:"head_block_time,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

func (rpc *RpcServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	res := &healthResponse{
		Status:    "ok",
		Version:   version.GetVersion(),
		Commit:    version.GetCommit(),
		ChainId:   rpc.globalConfig.ChainId,
		Freshness: storage.Freshness_Unknown,
	}
	freshness, err := rpc.health.Freshness()
	if err == nil {
		res.Freshness = freshness
	}
	if row, err := rpc.health.Status(); err == nil && row != nil {
		res.LastGoodBlock = row.LastGoodBlock
		res.HeadBlockTime = row.HeadBlockTime
		res.LastError = row.LastError
	}
	writeJSON(w, http.StatusOK, res)
}

// readyCheck reports ready only while the chain view is fresh enough to approve quotes.
func (rpc *RpcServer) readyCheck(w http.ResponseWriter, r *http.Request) {
	freshness, err := rpc.health.Freshness()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	if freshness != storage.Freshness_Fresh {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "freshness": freshness})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "freshness": freshness})
}
