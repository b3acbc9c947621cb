package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/engine"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/posting"
	"golang.org/x/time/rate"
)

const maxBody = 1 << 20

// Server serves the engine over HTTP.
type Server struct {
	svc    engine.Service
	logger log.Logger
}

func NewServer(svc engine.Service, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{svc: svc, logger: logger}
}

// Router registers every route. A nil limiter disables rate limiting.
func (s *Server) Router(limiter *rate.Limiter) *mux.Router {
	router := mux.NewRouter()
	if limiter != nil {
		router.Use(limit(limiter))
	}

	router.HandleFunc("/schedules", s.generateScheduleHandler).Methods("POST")
	router.HandleFunc("/events", s.postEventHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/schedule", s.getScheduleHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/schedules", s.scheduleHistoryHandler).Methods("GET")

	router.HandleFunc("/accounts", s.listAccountsHandler).Methods("GET")
	router.HandleFunc("/accounts/{id}/balance", s.balanceHandler).Methods("GET")
	router.HandleFunc("/accounts/{id}/entries", s.accountEntriesHandler).Methods("GET")
	router.HandleFunc("/entries/{id}", s.getEntryHandler).Methods("GET")
	router.HandleFunc("/entries/{id}/reversal", s.reverseHandler).Methods("POST")

	router.HandleFunc("/revaluations", s.revalueHandler).Methods("POST")

	router.HandleFunc("/rates", s.recordRateHandler).Methods("POST")
	router.HandleFunc("/rates", s.listRatesHandler).Methods("GET")
	router.HandleFunc("/rates/{base}/{quote}", s.getRateHandler).Methods("GET")
	return router
}

func limit(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) generateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req posting.Terms
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	terms, err := req.Resolve(s.svc.Catalog())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sch, err := s.svc.GenerateSchedule(r.Context(), terms)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

func (s *Server) postEventHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ev, err := posting.DecodeEvent(body, s.svc.Catalog())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.svc.PostEvent(r.Context(), ev)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	writeJSON(w, http.StatusCreated, entries)
}

func (s *Server) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	sch, err := s.svc.Schedule(r.Context(), loanID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

func (s *Server) scheduleHistoryHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	history, err := s.svc.ScheduleHistory(r.Context(), loanID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(history) == 0 {
		s.fail(w, r, fmt.Errorf("loan %s: %w", loanID, apperr.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) listAccountsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Accounts())
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := timeParam(r, "as_of")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := mux.Vars(r)["id"]
	b, err := s.svc.BalanceOf(r.Context(), id, asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Account: id,
		AsOf:    asOf,
		Balance: b,
		Display: b.Format(),
	})
}

type balanceResponse struct {
	Account string      `json:"account"`
	AsOf    time.Time   `json:"as_of"`
	Balance money.Money `json:"balance"`
	Display string      `json:"display"`
}

func (s *Server) accountEntriesHandler(w http.ResponseWriter, r *http.Request) {
	from, err := timeParam(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := timeParam(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := s.svc.Entries(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) getEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid entry ID", http.StatusBadRequest)
		return
	}
	e, err := s.svc.Entry(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) reverseHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid entry ID", http.StatusBadRequest)
		return
	}
	var req struct {
		At time.Time `json:"at"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	e, err := s.svc.Reverse(r.Context(), id, req.At)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) revalueHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Accounts []string  `json:"accounts"`
		AsOf     time.Time `json:"as_of"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := s.svc.Revalue(r.Context(), req.Accounts, req.AsOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) recordRateHandler(w http.ResponseWriter, r *http.Request) {
	var rt models.ExchangeRate
	if err := decodeBody(r, &rt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.svc.RecordRate(r.Context(), rt); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (s *Server) listRatesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rates, err := s.svc.Rates(r.Context(), money.Code(q.Get("base")), money.Code(q.Get("quote")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rates == nil {
		rates = []models.ExchangeRate{}
	}
	writeJSON(w, http.StatusOK, rates)
}

// getRateHandler answers the endpoint the remote rate feed reads, so one
// deployment can serve rates to another.
func (s *Server) getRateHandler(w http.ResponseWriter, r *http.Request) {
	at, err := timeParam(r, "at")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	rt, err := s.svc.Rate(r.Context(), money.Code(vars["base"]), money.Code(vars["quote"]), at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// fail maps err to a status by its kind. Storage causes are logged, not
// returned.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Log("method", r.Method, "path", r.URL.Path, "status", status, "err", err, "cause", apperr.Cause(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidTerms, apperr.KindInvalidAmount, apperr.KindInvalidInterval,
		apperr.KindCurrencyMismatch, apperr.KindUnknownAccount, apperr.KindUnknownCurrency:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindDuplicateEvent, apperr.KindCurrencyInUse:
		return http.StatusConflict
	case apperr.KindUnbalancedEntry, apperr.KindNoRateAvailable:
		return http.StatusUnprocessableEntity
	case apperr.KindBusy, apperr.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

// timeParam reads an optional time from the query string. Anything
// dateparse understands is accepted; dates without a zone are UTC.
func timeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	t, err := dateparse.ParseIn(v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q", name, v)
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
