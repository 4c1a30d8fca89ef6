package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"liquiditygauge/gateway/middleware"
	nativecommon "liquiditygauge/native/common"
	"liquiditygauge/native/controller"
	"liquiditygauge/native/distributor"
	"liquiditygauge/native/gauge"
	"liquiditygauge/native/minter"
	"liquiditygauge/native/votingescrow"
)

const requestLimit = 1 << 16

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("token subject does not own the address")
)

type handlers struct {
	cfg Config
}

type amountRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type userRequest struct {
	Address string `json:"address"`
}

type distributeRequest struct {
	Address  string   `json:"address"`
	Operator string   `json:"operator,omitempty"`
	Gauges   []string `json:"gauges"`
}

type approveRequest struct {
	Address  string `json:"address"`
	Operator string `json:"operator"`
}

type lockRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount,omitempty"`
	Unlock  uint64 `json:"unlock,omitempty"`
}

type killRequest struct {
	Killed bool `json:"killed"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type supplyResponse struct {
	TotalSupply   string `json:"totalSupply"`
	WorkingSupply string `json:"workingSupply"`
}

type stateResponse struct {
	Address           string `json:"address"`
	WorkingSupply     string `json:"workingSupply"`
	TotalStaked       string `json:"totalStaked"`
	Integral          string `json:"integral"`
	IntegralTimestamp uint64 `json:"integralTimestamp"`
	Period            uint64 `json:"period"`
	InflationRate     string `json:"inflationRate"`
	EpochStart        uint64 `json:"epochStart"`
	Killed            bool   `json:"killed"`
	Users             int    `json:"users"`
}

type periodResponse struct {
	Period    uint64 `json:"period"`
	Timestamp uint64 `json:"timestamp"`
	Integral  string `json:"integral"`
}

type userResponse struct {
	Address             string `json:"address"`
	StakedBalance       string `json:"stakedBalance"`
	WorkingBalance      string `json:"workingBalance"`
	IntegrateFraction   string `json:"integrateFraction"`
	IntegrateCheckpoint uint64 `json:"integrateCheckpoint"`
	Period              uint64 `json:"period"`
	Minted              string `json:"minted"`
}

type distributorResponse struct {
	StartEpochTime           uint64 `json:"startEpochTime"`
	FutureEpochTime          uint64 `json:"futureEpochTime"`
	Rate                     string `json:"rate"`
	PendingRate              string `json:"pendingRate"`
	EpochStartingDistributed string `json:"epochStartingDistributed"`
	AvailableToDistribute    string `json:"availableToDistribute"`
	TotalDistributed         string `json:"totalDistributed"`
}

type lockResponse struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	End     uint64 `json:"end"`
	Balance string `json:"balance"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

func (h *handlers) supply(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, supplyResponse{
		TotalSupply:   h.cfg.Gauge.TotalSupply().String(),
		WorkingSupply: h.cfg.Gauge.WorkingSupply().String(),
	})
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	st := h.cfg.Gauge.State()
	writeJSON(w, http.StatusOK, stateResponse{
		Address:           h.cfg.Gauge.Address().Hex(),
		WorkingSupply:     st.WorkingSupply.String(),
		TotalStaked:       st.TotalStaked.String(),
		Integral:          st.Integral.String(),
		IntegralTimestamp: st.IntegralTimestamp,
		Period:            st.Period,
		InflationRate:     st.InflationRate.String(),
		EpochStart:        st.EpochStart,
		Killed:            st.Killed,
		Users:             h.cfg.Gauge.Users(),
	})
}

func (h *handlers) period(w http.ResponseWriter, r *http.Request) {
	period, err := strconv.ParseUint(chi.URLParam(r, "period"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: period must be an unsigned integer", errBadRequest))
		return
	}
	entry, err := h.cfg.Gauge.PeriodCheckpoint(period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, periodResponse{Period: period, Timestamp: entry.Timestamp, Integral: entry.Integral.String()})
}

func (h *handlers) user(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.userView(addr))
}

func (h *handlers) userView(addr common.Address) userResponse {
	u := h.cfg.Gauge.UserState(addr)
	return userResponse{
		Address:             addr.Hex(),
		StakedBalance:       u.StakedBalance.String(),
		WorkingBalance:      u.WorkingBalance.String(),
		IntegrateFraction:   u.IntegrateFraction.String(),
		IntegrateCheckpoint: u.IntegrateCheckpoint,
		Period:              u.Period,
		Minted:              h.cfg.Minter.Minted(addr, h.cfg.Gauge.Address()).String(),
	}
}

func (h *handlers) deposit(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, h.cfg.Gauge.Deposit)
}

func (h *handlers) withdraw(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, h.cfg.Gauge.Withdraw)
}

func (h *handlers) amountOp(w http.ResponseWriter, r *http.Request, op func(common.Address, *big.Int) error) {
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := ownedAddress(r, req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(addr, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.userView(addr))
}

func (h *handlers) checkpoint(w http.ResponseWriter, r *http.Request) {
	h.userOp(w, r, true, h.cfg.Gauge.UserCheckpoint)
}

// kick may target any user.
func (h *handlers) kick(w http.ResponseWriter, r *http.Request) {
	h.userOp(w, r, false, h.cfg.Gauge.Kick)
}

func (h *handlers) userOp(w http.ResponseWriter, r *http.Request, owned bool, op func(common.Address) error) {
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	parse := parseAddress
	if owned {
		parse = func(raw string) (common.Address, error) { return ownedAddress(r, raw) }
	}
	addr, err := parse(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(addr); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.userView(addr))
}

func (h *handlers) minted(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: h.cfg.Minter.Minted(addr, h.cfg.Gauge.Address()).String()})
}

func (h *handlers) distribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	gauges := []common.Address{h.cfg.Gauge.Address()}
	if len(req.Gauges) > 0 {
		gauges = gauges[:0]
		for _, raw := range req.Gauges {
			g, err := parseAddress(raw)
			if err != nil {
				writeError(w, err)
				return
			}
			gauges = append(gauges, g)
		}
	}
	var paid *big.Int
	if strings.TrimSpace(req.Operator) != "" {
		if len(gauges) != 1 {
			writeError(w, fmt.Errorf("%w: operator payouts take a single gauge", errBadRequest))
			return
		}
		operator, err := ownedAddress(r, req.Operator)
		if err != nil {
			writeError(w, err)
			return
		}
		paid, err = h.cfg.Minter.DistributeFor(operator, user, gauges[0])
		if err != nil {
			writeError(w, err)
			return
		}
	} else {
		if err := requireSubject(r, user); err != nil {
			writeError(w, err)
			return
		}
		paid, err = h.cfg.Minter.DistributeMany(user, gauges)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: paid.String()})
}

func (h *handlers) approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := ownedAddress(r, req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	operator, err := parseAddress(req.Operator)
	if err != nil {
		writeError(w, err)
		return
	}
	approved, err := h.cfg.Minter.ToggleApproveDistribute(user, operator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": approved})
}

func (h *handlers) distributor(w http.ResponseWriter, r *http.Request) {
	d := h.cfg.Distributor
	snap := d.Snapshot()
	writeJSON(w, http.StatusOK, distributorResponse{
		StartEpochTime:           snap.StartTime,
		FutureEpochTime:          d.FutureEpochTime(),
		Rate:                     snap.Rate.String(),
		PendingRate:              snap.PendingRate.String(),
		EpochStartingDistributed: snap.EpochStartingDistributed.String(),
		AvailableToDistribute:    d.AvailableToDistribute(h.cfg.Clock.Now()).String(),
		TotalDistributed:         snap.TotalDistributed.String(),
	})
}

func (h *handlers) lock(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.lockView(addr))
}

func (h *handlers) lockView(addr common.Address) lockResponse {
	resp := lockResponse{Address: addr.Hex(), Amount: "0"}
	if l, ok := h.cfg.Escrow.Locked(addr); ok {
		resp.Amount = l.Amount.String()
		resp.End = l.End
	}
	resp.Balance = h.cfg.Escrow.BalanceOf(addr, h.cfg.Clock.Now()).String()
	return resp
}

func (h *handlers) createLock(w http.ResponseWriter, r *http.Request) {
	h.lockOp(w, r, func(addr common.Address, req lockRequest, now uint64) error {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return err
		}
		return h.cfg.Escrow.CreateLock(addr, amount, req.Unlock, now)
	})
}

func (h *handlers) increaseAmount(w http.ResponseWriter, r *http.Request) {
	h.lockOp(w, r, func(addr common.Address, req lockRequest, now uint64) error {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return err
		}
		return h.cfg.Escrow.IncreaseAmount(addr, amount, now)
	})
}

func (h *handlers) increaseUnlock(w http.ResponseWriter, r *http.Request) {
	h.lockOp(w, r, func(addr common.Address, req lockRequest, now uint64) error {
		return h.cfg.Escrow.IncreaseUnlockTime(addr, req.Unlock, now)
	})
}

func (h *handlers) withdrawLock(w http.ResponseWriter, r *http.Request) {
	h.lockOp(w, r, func(addr common.Address, _ lockRequest, now uint64) error {
		_, err := h.cfg.Escrow.Withdraw(addr, now)
		return err
	})
}

func (h *handlers) lockOp(w http.ResponseWriter, r *http.Request, op func(common.Address, lockRequest, uint64) error) {
	var req lockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := ownedAddress(r, req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(addr, req, h.cfg.Clock.Now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.lockView(addr))
}

func (h *handlers) kill(w http.ResponseWriter, r *http.Request) {
	var req killRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.cfg.Gauge.SetKilled(h.cfg.Admin, req.Killed); err != nil {
		writeError(w, err)
		return
	}
	h.state(w, r)
}

func (h *handlers) pause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	module := strings.ToLower(strings.TrimSpace(req.Module))
	if module != "gauge" && module != "minter" {
		writeError(w, fmt.Errorf("%w: unknown module %q", errBadRequest, req.Module))
		return
	}
	if h.cfg.Pauses == nil {
		writeError(w, errors.New("routes: pause switch not configured"))
		return
	}
	h.cfg.Pauses.Set(module, req.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{module: h.cfg.Pauses.IsPaused(module)})
}

func decodeJSON(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errBadRequest, raw)
	}
	return common.HexToAddress(trimmed), nil
}

// ownedAddress parses raw and checks that the token subject is that address.
func ownedAddress(r *http.Request, raw string) (common.Address, error) {
	addr, err := parseAddress(raw)
	if err != nil {
		return common.Address{}, err
	}
	if err := requireSubject(r, addr); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

func requireSubject(r *http.Request, addr common.Address) error {
	subject, _ := middleware.SubjectFromContext(r.Context())
	if !common.IsHexAddress(subject) || common.HexToAddress(subject) != addr {
		return fmt.Errorf("%w: subject %q, address %s", errForbidden, subject, addr.Hex())
	}
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount must be a decimal integer", errBadRequest)
	}
	return amount, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps engine sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, gauge.ErrInvalidAmount),
		errors.Is(err, gauge.ErrAmountOverflow),
		errors.Is(err, votingescrow.ErrInvalidAmount),
		errors.Is(err, votingescrow.ErrUnlockInPast),
		errors.Is(err, votingescrow.ErrUnlockTooLong),
		errors.Is(err, votingescrow.ErrUnlockNotLonger),
		errors.Is(err, minter.ErrBatchTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, errForbidden),
		errors.Is(err, gauge.ErrUnauthorized),
		errors.Is(err, distributor.ErrUnauthorized),
		errors.Is(err, controller.ErrUnauthorized),
		errors.Is(err, minter.ErrNotApproved):
		return http.StatusForbidden
	case errors.Is(err, gauge.ErrPeriodOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, gauge.ErrInsufficientBalance),
		errors.Is(err, gauge.ErrKickNotAllowed),
		errors.Is(err, gauge.ErrKickNotNeeded),
		errors.Is(err, gauge.ErrClockRewind),
		errors.Is(err, controller.ErrGaugeNotFound),
		errors.Is(err, minter.ErrGaugeNotAdded),
		errors.Is(err, distributor.ErrDistributionCap),
		errors.Is(err, votingescrow.ErrLockExists),
		errors.Is(err, votingescrow.ErrNoLock),
		errors.Is(err, votingescrow.ErrLockExpired),
		errors.Is(err, votingescrow.ErrLockNotExpired):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
