// Package api exposes the race lifecycle over HTTP JSON. Commands carry the
// caller account explicitly; queries serve detached snapshots, so external
// verifiers can replay any lane from the data returned here.
package api

import (
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ohler55/ojg/oj"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/BrianLudlam/block-racer/log"
	"github.com/BrianLudlam/block-racer/pkg/chain"
	"github.com/BrianLudlam/block-racer/pkg/db/archive"
	"github.com/BrianLudlam/block-racer/pkg/ledger"
	"github.com/BrianLudlam/block-racer/pkg/racing"
	"github.com/BrianLudlam/block-racer/pkg/registry"
)

type Server struct {
	engine  *racing.Engine
	chain   chain.Chain
	reg     *registry.MemRegistry
	led     *ledger.MemLedger
	archive archive.Querier // nil when no archive database is configured
	l       *log.Logger
}

type Option func(*Server)

func WithEngine(e *racing.Engine) Option {
	return func(s *Server) { s.engine = e }
}

func WithChain(c chain.Chain) Option {
	return func(s *Server) { s.chain = c }
}

func WithRegistry(r *registry.MemRegistry) Option {
	return func(s *Server) { s.reg = r }
}

func WithLedger(l *ledger.MemLedger) Option {
	return func(s *Server) { s.led = l }
}

// WithArchive enables the history and admin-delete routes backed by the
// archive database.
func WithArchive(q archive.Querier) Option {
	return func(s *Server) { s.archive = q }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.l = l }
}

func NewServer(opts ...Option) *Server {
	s := &Server{l: log.Default().Named("api")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route mux. Callers wrap it with CORS/h2c as needed.
func (s *Server) Handler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/queue/enter", s.handleEnter)
	mux.HandleFunc("POST /v1/queue/exit", s.handleExit)
	mux.HandleFunc("POST /v1/races/settle", s.handleSettle)
	mux.HandleFunc("POST /v1/racers/train", s.handleTrain)
	mux.HandleFunc("POST /v1/admin/mint", s.handleMint)
	mux.HandleFunc("GET /v1/races/{id}", s.handleRace)
	mux.HandleFunc("GET /v1/races/{id}/lanes/{lane}", s.handleLane)
	mux.HandleFunc("GET /v1/racers/{id}", s.handleRacer)
	mux.HandleFunc("GET /v1/queue/{level}", s.handleQueue)
	mux.HandleFunc("GET /v1/settling", s.handleSettling)
	mux.HandleFunc("GET /v1/owners/{owner}", s.handleOwner)
	mux.HandleFunc("GET /v1/owners/{owner}/history", s.handleOwnerHistory)
	mux.HandleFunc("GET /v1/chain", s.handleChain)
	mux.HandleFunc("DELETE /v1/admin/races/{id}", s.handleDeleteRace)
	return mux
}

type enterRequest struct {
	Caller  string `json:"caller"`
	RacerID uint64 `json:"racerId"`
	Paid    uint64 `json:"paid"`
}

type exitRequest struct {
	Caller  string `json:"caller"`
	RacerID uint64 `json:"racerId"`
}

type settleRequest struct {
	Caller string `json:"caller"`
	RaceID uint64 `json:"raceId"`
}

type trainRequest struct {
	Caller  string   `json:"caller"`
	RacerID uint64   `json:"racerId"`
	Deltas  [3]uint8 `json:"deltas"`
}

type mintRequest struct {
	Owner string `json:"owner"`
	Genes string `json:"genes"` // hex, up to 32 bytes
}

type refundResponse struct {
	Refund uint64 `json:"refund"`
}

type ownerResponse struct {
	Owner      string `json:"owner"`
	Balance    string `json:"balance"` // in tokens, e.g. "0.144"
	Experience uint64 `json:"experience"`
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	var req enterRequest
	if !s.decode(w, r, &req) {
		return
	}
	refund, err := s.engine.EnterQueue(req.Caller, req.RacerID, req.Paid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refundResponse{Refund: refund})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	var req exitRequest
	if !s.decode(w, r, &req) {
		return
	}
	refund, err := s.engine.ExitQueue(req.Caller, req.RacerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refundResponse{Refund: refund})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SettleRace(req.Caller, req.RaceID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.Train(req.Caller, req.RacerID, req.Deltas); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !s.decode(w, r, &req) {
		return
	}
	raw, err := hex.DecodeString(req.Genes)
	if err != nil || len(raw) > 32 || req.Owner == "" {
		s.writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "owner and hex genes (max 32 bytes) required"})
		return
	}
	var genes [32]byte
	copy(genes[:], raw)
	id := s.reg.Mint(req.Owner, genes)
	s.writeJSON(w, http.StatusOK, map[string]uint64{"racerId": id})
}

func (s *Server) handleRace(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUint(r.PathValue("id"))
	if !ok {
		s.writeError(w, racing.ErrNotFound)
		return
	}
	snap, err := s.engine.RaceSnapshot(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLane(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUint(r.PathValue("id"))
	lane, ok2 := parseUint(r.PathValue("lane"))
	if !ok || !ok2 || lane > 255 {
		s.writeError(w, racing.ErrNotFound)
		return
	}
	snap, err := s.engine.LaneSnapshot(id, uint8(lane))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRacer(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUint(r.PathValue("id"))
	if !ok {
		s.writeError(w, racing.ErrNotFound)
		return
	}
	snap, err := s.engine.RacerSnapshot(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	level, ok := parseUint(r.PathValue("level"))
	if !ok {
		s.writeError(w, racing.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK,
		map[string]int{"depth": s.engine.QueueDepth(int(level))})
}

func (s *Server) handleSettling(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK,
		map[string]int{"settling": s.engine.SettlingCount()})
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	units := s.led.BalanceOf(owner)
	balance := decimal.NewFromUint64(units).Shift(-3)
	s.writeJSON(w, http.StatusOK, ownerResponse{
		Owner:      owner,
		Balance:    balance.String(),
		Experience: s.engine.ExperienceOf(owner),
	})
}

// historyEntry is one archived lane in an owner's race history.
type historyEntry struct {
	RaceID   uint64 `json:"raceId"`
	Lane     uint8  `json:"lane"`
	RacerID  uint64 `json:"racerId"`
	Seed     string `json:"seed"`
	Speed    uint32 `json:"speed"`
	Max      uint32 `json:"max"`
	Distance uint64 `json:"distance"`
	Split    uint32 `json:"split"`
	Exp      uint8  `json:"exp"`
	Place    *int   `json:"place"`
}

func (s *Server) handleOwnerHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"error": "archive not configured"})
		return
	}
	lanes, err := archive.LoadOwnerLanes(r.Context(), s.archive, r.PathValue("owner"))
	if err != nil {
		s.l.Error("owner history query failed", log.ErrorField(err))
		s.writeJSON(w, http.StatusInternalServerError,
			map[string]string{"error": "history query failed"})
		return
	}
	s.writeJSON(w, http.StatusOK,
		lo.Map(lanes, func(l archive.LaneRecord, _ int) historyEntry {
			return historyEntry{
				RaceID:   l.RaceID,
				Lane:     l.Lane,
				RacerID:  l.RacerID,
				Seed:     l.Seed,
				Speed:    l.Speed,
				Max:      l.Max,
				Distance: l.Distance,
				Split:    l.Split,
				Exp:      l.Exp,
				Place:    l.Place,
			}
		}))
}

// handleDeleteRace drops an archived race and its lanes. The engine's own
// state is untouched; this only prunes history.
func (s *Server) handleDeleteRace(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"error": "archive not configured"})
		return
	}
	id, ok := parseUint(r.PathValue("id"))
	if !ok {
		s.writeError(w, racing.ErrNotFound)
		return
	}
	deleted, err := archive.DeleteByID(r.Context(), s.archive, id)
	if err != nil {
		s.l.Error("archive delete failed", log.ErrorField(err))
		s.writeJSON(w, http.StatusInternalServerError,
			map[string]string{"error": "archive delete failed"})
		return
	}
	if deleted == 0 {
		s.writeError(w, racing.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK,
		map[string]uint64{"height": s.chain.CurrentHeight()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		err = oj.Unmarshal(body, v)
	}
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := oj.Marshal(v)
	if err != nil {
		s.l.Error("response marshal failed", log.ErrorField(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // response write
	w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, racing.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, racing.ErrInsufficientFee):
		return http.StatusPaymentRequired
	case errors.Is(err, racing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, racing.ErrAlreadyRacing),
		errors.Is(err, racing.ErrNotRacing),
		errors.Is(err, racing.ErrAlreadyStarted),
		errors.Is(err, racing.ErrNoRaceToSettle),
		errors.Is(err, racing.ErrRaceNotFinished),
		errors.Is(err, racing.ErrTrainingExceedsExperience),
		errors.Is(err, racing.ErrTrainingOverPotential):
		return http.StatusConflict
	case errors.Is(err, chain.ErrValueUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseUint(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}
