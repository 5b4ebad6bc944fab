package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	errs "savingsbank/core/errors"
	"savingsbank/gateway/middleware"
	"savingsbank/native/certificate"
	"savingsbank/native/plans"
	"savingsbank/native/savings"
)

const maxBodyBytes = 1 << 16

var errMissingCaller = errs.New(errs.KindUnauthorized, "missing caller")

// --- request helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, "invalid payload")
		return false
	}
	return true
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (ethcommon.Address, bool) {
	addr, ok := middleware.CallerFrom(r.Context())
	if !ok || addr == (ethcommon.Address{}) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errMissingCaller.Error(), Kind: errs.KindUnauthorized.String()})
		return ethcommon.Address{}, false
	}
	return addr, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeBadRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

func parseAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

func parseAddress(raw string) (ethcommon.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return ethcommon.Address{}, false
	}
	return ethcommon.HexToAddress(trimmed), true
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// --- views ---

type depositView struct {
	ID               uint64 `json:"id"`
	Depositor        string `json:"depositor"`
	PlanID           uint64 `json:"planId"`
	Principal        string `json:"principal"`
	TermDays         uint64 `json:"termDays"`
	DepositDate      uint64 `json:"depositDate"`
	MaturityDate     uint64 `json:"maturityDate"`
	ExpectedInterest string `json:"expectedInterest"`
	Status           string `json:"status"`
	CertificateID    uint64 `json:"certificateId"`
}

func depositViewFrom(dep *savings.Deposit) depositView {
	return depositView{
		ID:               dep.ID,
		Depositor:        dep.Depositor.Hex(),
		PlanID:           dep.PlanID,
		Principal:        amountString(dep.Principal),
		TermDays:         dep.TermDays,
		DepositDate:      dep.DepositDate,
		MaturityDate:     dep.MaturityDate,
		ExpectedInterest: amountString(dep.ExpectedInterest),
		Status:           dep.Status.String(),
		CertificateID:    dep.CertificateID,
	}
}

type planView struct {
	ID              uint64 `json:"id"`
	Name            string `json:"name"`
	MinDeposit      string `json:"minDeposit"`
	MaxDeposit      string `json:"maxDeposit"`
	MinTermDays     uint64 `json:"minTermDays"`
	MaxTermDays     uint64 `json:"maxTermDays"`
	AnnualRateBps   uint64 `json:"annualRateBps"`
	PenaltyRateBps  uint64 `json:"penaltyRateBps"`
	Active          bool   `json:"active"`
	PenaltyReceiver string `json:"penaltyReceiver,omitempty"`
}

func planViewFrom(plan *plans.Plan) planView {
	view := planView{
		ID:             plan.ID,
		Name:           plan.Name,
		MinDeposit:     amountString(plan.MinDeposit),
		MaxDeposit:     amountString(plan.MaxDeposit),
		MinTermDays:    plan.MinTermDays,
		MaxTermDays:    plan.MaxTermDays,
		AnnualRateBps:  plan.AnnualRateBps,
		PenaltyRateBps: plan.PenaltyRateBps,
		Active:         plan.Active,
	}
	if plan.HasPenaltyReceiver() {
		view.PenaltyReceiver = plan.PenaltyReceiver.Hex()
	}
	return view
}

// --- deposits ---

type createDepositRequest struct {
	PlanID   uint64 `json:"planId"`
	Amount   string `json:"amount"`
	TermDays uint64 `json:"termDays"`
}

func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req createDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	id, err := s.node.CreateDeposit(caller, req.PlanID, amount, req.TermDays)
	if err != nil {
		s.writeError(w, r, "deposits.create", err)
		return
	}
	dep, err := s.node.Deposit(id)
	if err != nil {
		s.writeError(w, r, "deposits.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, depositViewFrom(dep))
}

type settlementView struct {
	DepositID       uint64 `json:"depositId"`
	Recipient       string `json:"recipient"`
	Payout          string `json:"payout"`
	Interest        string `json:"interest"`
	Penalty         string `json:"penalty"`
	Early           bool   `json:"early"`
	PenaltyReceiver string `json:"penaltyReceiver,omitempty"`
}

func (s *Server) handleWithdrawDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	settlement, err := s.node.WithdrawDeposit(caller, id)
	if err != nil {
		s.writeError(w, r, "deposits.withdraw", err)
		return
	}
	view := settlementView{
		DepositID: settlement.DepositID,
		Recipient: settlement.Recipient.Hex(),
		Payout:    amountString(settlement.Payout),
		Interest:  amountString(settlement.Interest),
		Penalty:   amountString(settlement.Penalty),
		Early:     settlement.Early,
	}
	if settlement.PenaltyReceiver != (ethcommon.Address{}) {
		view.PenaltyReceiver = settlement.PenaltyReceiver.Hex()
	}
	writeJSON(w, http.StatusOK, view)
}

type renewDepositRequest struct {
	PlanID   uint64 `json:"planId"`
	TermDays uint64 `json:"termDays"`
}

func (s *Server) handleRenewDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req renewDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	renewed, err := s.node.RenewDeposit(caller, id, req.PlanID, req.TermDays)
	if err != nil {
		s.writeError(w, r, "deposits.renew", err)
		return
	}
	dep, err := s.node.Deposit(renewed)
	if err != nil {
		s.writeError(w, r, "deposits.renew", err)
		return
	}
	writeJSON(w, http.StatusCreated, depositViewFrom(dep))
}

func (s *Server) handleGetDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dep, err := s.node.Deposit(id)
	if err != nil {
		s.writeError(w, r, "deposits.get", err)
		return
	}
	writeJSON(w, http.StatusOK, depositViewFrom(dep))
}

func (s *Server) handleDepositPenalty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	penalty, err := s.node.CalculateEarlyWithdrawalPenalty(id)
	if err != nil {
		s.writeError(w, r, "deposits.penalty", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"depositId": id, "penalty": amountString(penalty)})
}

func (s *Server) handleDepositMature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	mature, err := s.node.IsDepositMature(id)
	if err != nil {
		s.writeError(w, r, "deposits.mature", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"depositId": id, "mature": mature})
}

func (s *Server) handleUserDeposits(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		writeBadRequest(w, "invalid address")
		return
	}
	ids, err := s.node.UserDepositIDs(addr)
	if err != nil {
		s.writeError(w, r, "users.deposits", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": addr.Hex(), "depositIds": ids})
}

func (s *Server) handleUserAsset(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		writeBadRequest(w, "invalid address")
		return
	}
	account, err := s.node.AssetAccount(addr)
	if err != nil {
		s.writeError(w, r, "users.asset", err)
		return
	}
	certificates, err := s.node.CertificateBalance(addr)
	if err != nil {
		s.writeError(w, r, "users.asset", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":         addr.Hex(),
		"balance":         amountString(account.Balance),
		"ledgerAllowance": amountString(account.LedgerAllowance),
		"certificates":    certificates,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.node.Stats()
	if err != nil {
		s.writeError(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalDeposits":  stats.TotalDeposits,
		"activeDeposits": stats.ActiveDeposits,
		"totalPlans":     stats.TotalPlans,
		"certificates":   stats.Certificates,
		"vaultBalance":   amountString(stats.VaultBalance),
		"paused":         stats.Paused,
	})
}

// --- plans ---

type planRequest struct {
	Name           string `json:"name"`
	MinDeposit     string `json:"minDeposit"`
	MaxDeposit     string `json:"maxDeposit"`
	MinTermDays    uint64 `json:"minTermDays"`
	MaxTermDays    uint64 `json:"maxTermDays"`
	AnnualRateBps  uint64 `json:"annualRateBps"`
	PenaltyRateBps uint64 `json:"penaltyRateBps"`
}

func (req planRequest) input() (plans.Input, bool) {
	in := plans.Input{
		Name:           req.Name,
		MinTermDays:    req.MinTermDays,
		MaxTermDays:    req.MaxTermDays,
		AnnualRateBps:  req.AnnualRateBps,
		PenaltyRateBps: req.PenaltyRateBps,
		MinDeposit:     big.NewInt(0),
		MaxDeposit:     big.NewInt(0),
	}
	if req.MinDeposit != "" {
		amount, ok := parseAmount(req.MinDeposit)
		if !ok {
			return in, false
		}
		in.MinDeposit = amount
	}
	if req.MaxDeposit != "" {
		amount, ok := parseAmount(req.MaxDeposit)
		if !ok {
			return in, false
		}
		in.MaxDeposit = amount
	}
	return in, true
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req planRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, ok := req.input()
	if !ok {
		writeBadRequest(w, "invalid deposit bounds")
		return
	}
	id, err := s.node.CreatePlan(caller, in)
	if err != nil {
		s.writeError(w, r, "plans.create", err)
		return
	}
	s.respondPlan(w, r, "plans.create", id, http.StatusCreated)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req planRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, ok := req.input()
	if !ok {
		writeBadRequest(w, "invalid deposit bounds")
		return
	}
	if err := s.node.UpdatePlan(caller, id, in); err != nil {
		s.writeError(w, r, "plans.update", err)
		return
	}
	s.respondPlan(w, r, "plans.update", id, http.StatusOK)
}

func (s *Server) handleActivatePlan(w http.ResponseWriter, r *http.Request) {
	s.togglePlan(w, r, true)
}

func (s *Server) handleDeactivatePlan(w http.ResponseWriter, r *http.Request) {
	s.togglePlan(w, r, false)
}

func (s *Server) togglePlan(w http.ResponseWriter, r *http.Request, active bool) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	op := "plans.deactivate"
	toggle := s.node.DeactivatePlan
	if active {
		op = "plans.activate"
		toggle = s.node.ActivatePlan
	}
	if err := toggle(caller, id); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	s.respondPlan(w, r, op, id, http.StatusOK)
}

type penaltyReceiverRequest struct {
	Receiver string `json:"receiver"`
}

func (s *Server) handlePenaltyReceiver(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req penaltyReceiverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receiver := ethcommon.Address{}
	if strings.TrimSpace(req.Receiver) != "" {
		if receiver, ok = parseAddress(req.Receiver); !ok {
			writeBadRequest(w, "invalid receiver")
			return
		}
	}
	if err := s.node.UpdatePenaltyReceiver(caller, id, receiver); err != nil {
		s.writeError(w, r, "plans.penalty_receiver", err)
		return
	}
	s.respondPlan(w, r, "plans.penalty_receiver", id, http.StatusOK)
}

func (s *Server) respondPlan(w http.ResponseWriter, r *http.Request, op string, id uint64, status int) {
	plan, err := s.node.Plan(id)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	writeJSON(w, status, planViewFrom(plan))
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.respondPlan(w, r, "plans.get", id, http.StatusOK)
}

func (s *Server) handlePlanInterest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	amount, ok := parseAmount(r.URL.Query().Get("amount"))
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	termDays, err := strconv.ParseUint(r.URL.Query().Get("termDays"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid termDays")
		return
	}
	interest, err := s.node.CalculateExpectedInterest(amount, id, termDays)
	if err != nil {
		s.writeError(w, r, "plans.interest", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"planId":   id,
		"amount":   amount.String(),
		"termDays": termDays,
		"interest": amountString(interest),
	})
}

// --- vault ---

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) vaultCall(w http.ResponseWriter, r *http.Request, op string, call func(ethcommon.Address, *big.Int) error) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	if err := call(caller, amount); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	s.handleGetVault(w, r)
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, r *http.Request) {
	s.vaultCall(w, r, "vault.deposit", s.node.DepositToVault)
}

func (s *Server) handleVaultWithdraw(w http.ResponseWriter, r *http.Request) {
	s.vaultCall(w, r, "vault.withdraw", s.node.WithdrawFromVault)
}

func (s *Server) handleVaultAdminWithdraw(w http.ResponseWriter, r *http.Request) {
	s.vaultCall(w, r, "vault.admin_withdraw", s.node.AdminWithdraw)
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	info, err := s.node.Vault()
	if err != nil {
		s.writeError(w, r, "vault.get", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": info.Address.Hex(),
		"token":   info.Token.Hex(),
		"balance": amountString(info.Balance),
		"ledger":  s.node.LedgerAddress().Hex(),
	})
}

// --- certificates ---

type transferCertificateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleTransferCertificate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req transferCertificateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		writeBadRequest(w, "invalid recipient")
		return
	}
	from := ethcommon.Address{}
	if strings.TrimSpace(req.From) != "" {
		if from, ok = parseAddress(req.From); !ok {
			writeBadRequest(w, "invalid owner")
			return
		}
	}
	if err := s.node.TransferCertificate(caller, from, to, id); err != nil {
		s.writeError(w, r, "certificates.transfer", err)
		return
	}
	s.respondCertificate(w, r, id)
}

type approveCertificateRequest struct {
	Spender string `json:"spender"`
}

func (s *Server) handleApproveCertificate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req approveCertificateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	spender := ethcommon.Address{}
	if strings.TrimSpace(req.Spender) != "" {
		if spender, ok = parseAddress(req.Spender); !ok {
			writeBadRequest(w, "invalid spender")
			return
		}
	}
	if err := s.node.ApproveCertificate(caller, spender, id); err != nil {
		s.writeError(w, r, "certificates.approve", err)
		return
	}
	s.respondCertificate(w, r, id)
}

type operatorRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleCertificateOperator(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	operator, ok := parseAddress(req.Operator)
	if !ok {
		writeBadRequest(w, "invalid operator")
		return
	}
	if err := s.node.SetCertificateOperator(caller, operator, req.Approved); err != nil {
		s.writeError(w, r, "certificates.operator", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":    caller.Hex(),
		"operator": operator.Hex(),
		"approved": req.Approved,
	})
}

func (s *Server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.respondCertificate(w, r, id)
}

func (s *Server) respondCertificate(w http.ResponseWriter, r *http.Request, id uint64) {
	info, err := s.node.Certificate(id)
	if err != nil {
		s.writeError(w, r, "certificates.get", err)
		return
	}
	view := map[string]interface{}{
		"id":                id,
		"name":              certificate.Name,
		"symbol":            certificate.Symbol,
		"owner":             info.Owner.Hex(),
		"lastTransferTime":  info.LastTransferTime,
		"inCooldown":        info.InCooldown,
		"remainingCooldown": info.RemainingCooldown,
	}
	if info.Approved != (ethcommon.Address{}) {
		view["approved"] = info.Approved.Hex()
	}
	writeJSON(w, http.StatusOK, view)
}

// --- access ---

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.node.Pause(caller); err != nil {
		s.writeError(w, r, "admin.pause", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.node.Unpause(caller); err != nil {
		s.writeError(w, r, "admin.unpause", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type roleRequest struct {
	Role    string `json:"role"`
	Account string `json:"account"`
}

func (s *Server) roleCall(w http.ResponseWriter, r *http.Request, op string, needsAccount bool, call func(caller ethcommon.Address, role string, account ethcommon.Address) error) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account := caller
	if needsAccount {
		if account, ok = parseAddress(req.Account); !ok {
			writeBadRequest(w, "invalid account")
			return
		}
	}
	if err := call(caller, req.Role, account); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":    strings.ToUpper(strings.TrimSpace(req.Role)),
		"account": account.Hex(),
		"hasRole": s.node.HasRole(req.Role, account),
	})
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	s.roleCall(w, r, "admin.roles.grant", true, s.node.GrantRole)
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	s.roleCall(w, r, "admin.roles.revoke", true, s.node.RevokeRole)
}

func (s *Server) handleRenounceRole(w http.ResponseWriter, r *http.Request) {
	s.roleCall(w, r, "admin.roles.renounce", false, func(caller ethcommon.Address, role string, _ ethcommon.Address) error {
		return s.node.RenounceRole(caller, role)
	})
}

func (s *Server) handleRoleMembers(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	members, err := s.node.RoleMembers(role)
	if err != nil {
		s.writeError(w, r, "roles.members", err)
		return
	}
	out := make([]string, 0, len(members))
	for _, member := range members {
		out = append(out, member.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"role": strings.ToUpper(role), "members": out})
}

// --- asset ---

type approveAssetRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *Server) handleApproveAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req approveAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	spender := s.node.LedgerAddress()
	if strings.TrimSpace(req.Spender) != "" {
		if spender, ok = parseAddress(req.Spender); !ok {
			writeBadRequest(w, "invalid spender")
			return
		}
	}
	if err := s.node.ApproveAsset(caller, spender, amount); err != nil {
		s.writeError(w, r, "asset.approve", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":   caller.Hex(),
		"spender": spender.Hex(),
		"amount":  amount.String(),
	})
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	meta := s.node.AssetMetadata()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":     meta.Name,
		"symbol":   meta.Symbol,
		"decimals": meta.Decimals,
	})
}

// --- audit ---

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var after uint64
	if raw := query.Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, "invalid after")
			return
		}
		after = parsed
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}
	records, err := s.audit.List(r.Context(), after, limit, query.Get("type"))
	if err != nil {
		s.writeError(w, r, "events.list", err)
		return
	}
	next := after
	if len(records) > 0 {
		next = records[len(records)-1].Sequence
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records, "next": next})
}
