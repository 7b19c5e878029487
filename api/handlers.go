// Copyright 2025 The Private-Blockchain Authors
// This file is part of the Private-Blockchain library.
//
// The Private-Blockchain library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Private-Blockchain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Private-Blockchain library. If not, see <http://www.gnu.org/licenses/>.

package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/muuduuu/Private-Blockchain/audit"
	"github.com/muuduuu/Private-Blockchain/core/types"
	"github.com/muuduuu/Private-Blockchain/storage"
	"github.com/muuduuu/Private-Blockchain/wallet"
)

// Transaction listing limits.
const (
	defaultTxLimit = 100
	maxTxLimit     = 1000
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Stats.MempoolStats()
	totalBlocks, err := s.deps.Chain.TotalBlocks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	var headHash string
	if head, err := s.deps.Chain.Head(); err == nil {
		headHash = head.Hash
	}
	walletCount, err := s.deps.Registry.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	providers, _ := s.deps.Directory.Providers()
	patients, _ := s.deps.Directory.Patients()
	validators, _ := s.deps.Directory.Validators()

	writeData(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   s.cfg.Version,
		"networkId": s.cfg.NetworkID,
		"uptime":    int64(time.Since(s.startedAt).Seconds()),
		"chain": map[string]interface{}{
			"totalBlocks": totalBlocks,
			"headHash":    headHash,
		},
		"mempool": stats,
		"wallets": walletCount,
		"directory": map[string]int{
			"providers":  len(providers),
			"patients":   len(patients),
			"validators": len(validators),
		},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	online, _, err := s.deps.Directory.ValidatorCounts(now, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	totalBlocks, err := s.deps.Chain.TotalBlocks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	txs, err := s.deps.Txs.Transactions(storage.TransactionFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	// One bucket per hour, oldest first; the last bucket is the current hour.
	var trend [24]float64
	recent := 0
	for _, tx := range txs {
		age := now.Sub(tx.CreatedAt)
		if age < time.Minute {
			recent++
		}
		if age >= 0 && age < 24*time.Hour {
			trend[23-int(age/time.Hour)] += 1.0 / 3600
		}
	}

	stats := s.deps.Stats.MempoolStats()
	utilization := 0.0
	if stats.TotalCapacity > 0 {
		utilization = float64(stats.TotalSize) / float64(stats.TotalCapacity)
	}

	validators, err := s.deps.Directory.Validators()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	sort.Slice(validators, func(i, j int) bool {
		return validators[i].Reputation > validators[j].Reputation
	})
	if len(validators) > 5 {
		validators = validators[:5]
	}
	scores := make([]map[string]interface{}, 0, len(validators))
	for _, v := range validators {
		scores = append(scores, map[string]interface{}{
			"id":             v.ID,
			"tier":           v.Tier,
			"reputation":     v.Reputation,
			"uptime":         v.Uptime,
			"blocksProposed": v.BlocksProposed,
		})
	}

	writeData(w, http.StatusOK, map[string]interface{}{
		"validatorsActive": online,
		"currentTps":       float64(recent) / 60,
		"networkLatency":   35 + 120*utilization,
		"totalBlocks":      totalBlocks,
		"tpsTrend":         trend,
		"transactionDistribution": [3]int{
			stats.Tiers[0].Size, stats.Tiers[1].Size, stats.Tiers[2].Size,
		},
		"validatorScores": scores,
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.deps.Directory.Providers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeData(w, http.StatusOK, providers)
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	patients, err := s.deps.Directory.Patients()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeData(w, http.StatusOK, patients)
}

func (s *Server) handleValidators(w http.ResponseWriter, r *http.Request) {
	validators, err := s.deps.Directory.Validators()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeData(w, http.StatusOK, validators)
}

// parseTierLabel resolves "Tier-1".."Tier-3" to the tier number.
func parseTierLabel(label string) (int, error) {
	switch label {
	case "Tier-1":
		return types.Tier1, nil
	case "Tier-2":
		return types.Tier2, nil
	case "Tier-3":
		return types.Tier3, nil
	default:
		return 0, fmt.Errorf("priority must be Tier-1, Tier-2 or Tier-3, got %q", label)
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.TransactionFilter{
		PatientID: q.Get("patientId"),
		Type:      q.Get("type"),
		Status:    q.Get("status"),
		Limit:     defaultTxLimit,
	}
	if label := q.Get("priority"); label != "" {
		tier, err := parseTierLabel(label)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		filter.Tier = tier
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		if limit > maxTxLimit {
			limit = maxTxLimit
		}
		filter.Limit = limit
	}

	txs, err := s.deps.Txs.Transactions(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if txs == nil {
		txs = []*types.Transaction{}
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"snapshot":     s.deps.Pool.Snapshot(),
		"stats":        s.deps.Stats.MempoolStats(),
	})
}

type submitRequest struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	PatientID  string                 `json:"patientId"`
	Provider   string                 `json:"provider"`
	ProviderID string                 `json:"providerId"`
	Priority   string                 `json:"priority"`
	Status     string                 `json:"status"`
	Signature  string                 `json:"signature"`
	Payload    map[string]interface{} `json:"payload"`
	ActorID    string                 `json:"actorId"`
	ActorType  string                 `json:"actorType"`
	Details    string                 `json:"details"`
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var missing []string
	for field, value := range map[string]string{
		"type": req.Type, "patientId": req.PatientID, "provider": req.Provider, "priority": req.Priority,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		writeError(w, http.StatusBadRequest, "missing required fields", missing)
		return
	}
	hint, err := parseTierLabel(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	payload := req.Payload
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["patientId"] = req.PatientID
	payload["provider"] = req.Provider
	if req.ProviderID != "" {
		payload["providerId"] = req.ProviderID
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := req.Status
	if status == "" {
		status = "pending"
	}
	tx := &types.Transaction{
		ID:        id,
		Type:      req.Type,
		Payload:   payload,
		Signature: req.Signature,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}

	breakdown := s.deps.Engine.Calculate(tx)
	tx.Priority = breakdown.Priority

	tier, evicted, err := s.deps.Pool.Add(tx, breakdown, hint)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	tx.Tier = tier
	if err := s.deps.Txs.UpsertTransaction(tx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	actorID := req.ActorID
	if actorID == "" {
		actorID = req.Provider
	}
	actorType := req.ActorType
	if actorType == "" {
		actorType = "clinician"
	}
	_, err = s.deps.Audit.Record(&types.AuditInput{
		Action:    "transaction.submit",
		ActorID:   actorID,
		ActorType: actorType,
		Resource:  "transaction",
		Outcome:   types.OutcomeSuccess,
		PatientID: req.PatientID,
		IPAddress: r.RemoteAddr,
		Details:   req.Details,
		Metadata: map[string]interface{}{
			"transactionId": tx.ID,
			"type":          tx.Type,
			"priority":      breakdown.Priority,
		},
		Tags: []string{"mempool", fmt.Sprintf("tier-%d", tier)},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	data := map[string]interface{}{
		"transaction": tx,
		"breakdown":   breakdown,
		"tier":        tier,
	}
	if evicted != nil {
		data["evicted"] = evicted
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data":  data,
		"stats": s.deps.Stats.MempoolStats(),
	})
}

func parseAuditFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	f := audit.Filters{
		ActorID:   q.Get("actorId"),
		ActorType: q.Get("actorType"),
		PatientID: q.Get("patientId"),
		Resource:  q.Get("resource"),
		Action:    q.Get("action"),
		Outcome:   q.Get("outcome"),
		Search:    q.Get("search"),
	}
	if raw := q.Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC 3339 timestamp", bound.name)
		}
		*bound.dst = &ts
	}
	return f, nil
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	filters, err := parseAuditFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	q := audit.Query{
		Filters:   filters,
		Cursor:    r.URL.Query().Get("cursor"),
		Direction: r.URL.Query().Get("direction"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		q.Limit = limit
	}
	res, err := s.deps.Audit.Run(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseAuditFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	csvOut, err := s.deps.Audit.ExportCSV(filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(csvOut))
}

type challengeRequest struct {
	Address         string                 `json:"address"`
	Type            string                 `json:"type"`
	Label           string                 `json:"label"`
	Metadata        map[string]interface{} `json:"metadata"`
	CustomPublicKey string                 `json:"customPublicKey"`
}

func (s *Server) handleWalletChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, "address is required", nil)
		return
	}
	ch, err := s.deps.Auth.IssueNonce(req.Address, wallet.IssueOptions{
		Family:    req.Type,
		Label:     req.Label,
		Metadata:  req.Metadata,
		PublicKey: req.CustomPublicKey,
	})
	if err != nil {
		writeError(w, walletErrorStatus(err), err.Error(), nil)
		return
	}
	writeData(w, http.StatusOK, ch)
}

type verifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

func (s *Server) handleWalletVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Signature) == "" {
		writeError(w, http.StatusBadRequest, "address and signature are required", nil)
		return
	}
	res, err := s.deps.Auth.Verify(req.Address, req.Signature)
	if err != nil {
		s.auditAuthAttempt(r, req.Address, types.OutcomeFailed, err.Error())
		writeError(w, walletErrorStatus(err), err.Error(), nil)
		return
	}
	s.auditAuthAttempt(r, req.Address, types.OutcomeSuccess, "")
	writeData(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"wallet":       res.Wallet,
		"verifiedAt":   res.VerifiedAt,
		"sessionToken": res.SessionToken,
		"proof":        res.Proof,
	})
}

// auditAuthAttempt records a verification attempt; failures to record are
// logged, not surfaced, so auditing cannot mask the auth result.
func (s *Server) auditAuthAttempt(r *http.Request, address, outcome, detail string) {
	_, err := s.deps.Audit.Record(&types.AuditInput{
		Action:    "wallet.verify",
		ActorID:   types.NormalizeAddress(address),
		ActorType: "wallet",
		Resource:  "wallet",
		Outcome:   outcome,
		IPAddress: r.RemoteAddr,
		Details:   detail,
		Tags:      []string{"auth"},
	})
	if err != nil {
		s.log.Warn("Failed to audit wallet verification", "address", address, "err", err)
	}
}

// walletErrorStatus maps wallet-domain failures to 400 and anything else
// (storage and the like) to 500.
func walletErrorStatus(err error) int {
	for _, sentinel := range []error{
		wallet.ErrUnknownWallet,
		wallet.ErrNoActiveNonce,
		wallet.ErrNonceExpired,
		wallet.ErrInvalidSignature,
		wallet.ErrFamilyMismatch,
		wallet.ErrMissingPublicKey,
		wallet.ErrWalletInactive,
		wallet.ErrInvalidStatus,
	} {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest
		}
	}
	if strings.Contains(err.Error(), "wallet:") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
