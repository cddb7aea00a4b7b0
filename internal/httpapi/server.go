// Package httpapi is a thin chi-based read/write surface over the
// protocol core, standing in for the out-of-scope REST metadata API the
// real Flask routes (elections.py, voters.py, blockchain.py) expose
// against a live chain. It has no persistence of its own and no rate
// limiting; authentication is delegated entirely to the protocol layer's
// own signature check on every caller-identified request, so this package
// never trusts a bare caller field by itself.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/lietuva-vote/electiond/internal/protocol"
)

// Server wires a Registry, Factory, and Verifier behind HTTP routes.
type Server struct {
	registry *protocol.VoterRegistry
	factory  *protocol.Factory
	verifier *protocol.Verifier
	clock    protocol.Clock
}

// New constructs a Server over the given components.
func New(registry *protocol.VoterRegistry, factory *protocol.Factory, verifier *protocol.Verifier, clock protocol.Clock) *Server {
	return &Server{registry: registry, factory: factory, verifier: verifier, clock: clock}
}

// Router builds the chi mux with every route registered, renamed from the
// teacher's vote-specific /api/register, /api/vote, /api/results to the
// protocol's own operation names.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/voters", func(r chi.Router) {
		r.Post("/", s.handleRegisterVoter)
		r.Get("/{wallet}", s.handleGetVoter)
		r.Post("/{wallet}/deactivate", s.handleDeactivateVoter)
		r.Post("/{wallet}/reactivate", s.handleReactivateVoter)
	})

	r.Route("/elections", func(r chi.Router) {
		r.Post("/", s.handleCreateElection)
		r.Get("/", s.handleListElections)
		r.Get("/{id}", s.handleGetElection)
		r.Get("/{id}/analytics", s.handleElectionAnalytics)
		r.Post("/{id}/commit", s.handleCommitVote)
		r.Post("/{id}/reveal", s.handleRevealVote)
		r.Get("/{id}/results", s.handleGetResults)
		r.Get("/{id}/receipt/{wallet}", s.handleVerifyReceipt)
	})

	return r
}

func (s *Server) electionByID(w http.ResponseWriter, r *http.Request) (*protocol.Ballot, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 || int(id) > s.factory.GetElectionCount() {
		writeError(w, http.StatusNotFound, protocol.ErrBallotNotFound)
		return nil, false
	}
	record, perr := s.factory.GetElection(int(id) - 1)
	if perr != nil {
		writeError(w, http.StatusNotFound, perr)
		return nil, false
	}
	ballot, perr := s.factory.GetElectionByBallot(record.BallotRef)
	if perr != nil {
		writeError(w, http.StatusNotFound, perr)
		return nil, false
	}
	return ballot, true
}

type registerVoterRequest struct {
	Caller         common.Address `json:"caller"`
	Wallet         common.Address `json:"wallet"`
	IdentityHash   [32]byte       `json:"identityHash"`
	ConstituencyID uint64         `json:"constituencyId"`
	Sig            []byte         `json:"sig"`
}

func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	var req registerVoterRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.registry.RegisterVoter(req.Caller, req.Wallet, req.IdentityHash, req.ConstituencyID, req.Sig); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (s *Server) handleGetVoter(w http.ResponseWriter, r *http.Request) {
	wallet := common.HexToAddress(chi.URLParam(r, "wallet"))
	record, err := s.registry.GetVoterInfo(wallet)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type deactivateVoterRequest struct {
	Caller common.Address `json:"caller"`
	Reason string         `json:"reason"`
	Sig    []byte         `json:"sig"`
}

func (s *Server) handleDeactivateVoter(w http.ResponseWriter, r *http.Request) {
	wallet := common.HexToAddress(chi.URLParam(r, "wallet"))
	var req deactivateVoterRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.registry.DeactivateVoter(req.Caller, wallet, req.Reason, req.Sig); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type reactivateVoterRequest struct {
	Caller common.Address `json:"caller"`
	Sig    []byte         `json:"sig"`
}

func (s *Server) handleReactivateVoter(w http.ResponseWriter, r *http.Request) {
	wallet := common.HexToAddress(chi.URLParam(r, "wallet"))
	var req reactivateVoterRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.registry.ReactivateVoter(req.Caller, wallet, req.Sig); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reactivated"})
}

type createElectionRequest struct {
	Caller           common.Address `json:"caller"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	CommitDeadline   int64          `json:"commitDeadline"`
	RevealDeadline   int64          `json:"revealDeadline"`
	CandidateNames   []string       `json:"candidateNames"`
	CandidateParties []string       `json:"candidateParties"`
	ConstituencyID   uint64         `json:"constituencyId"`
	ElectionType     int            `json:"electionType"`
	Sig              []byte         `json:"sig"`
}

func (s *Server) handleCreateElection(w http.ResponseWriter, r *http.Request) {
	var req createElectionRequest
	if !decode(w, r, &req) {
		return
	}
	id, ref, err := s.factory.CreateElection(
		req.Caller, req.Name, req.Description,
		secondsToTime(req.CommitDeadline), secondsToTime(req.RevealDeadline),
		req.CandidateNames, req.CandidateParties, req.ConstituencyID,
		protocol.ElectionType(req.ElectionType), req.Sig,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"electionId": id, "ballotRef": ref})
}

func (s *Server) handleListElections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.factory.GetAllElections())
}

func (s *Server) handleGetElection(w http.ResponseWriter, r *http.Request) {
	ballot, ok := s.electionByID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ballot.GetElectionInfo())
}

func (s *Server) handleElectionAnalytics(w http.ResponseWriter, r *http.Request) {
	ballot, ok := s.electionByID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.verifier.GetElectionAnalytics(ballot, s.registry, s.clock))
}

type commitVoteRequest struct {
	Caller     common.Address `json:"caller"`
	CommitHash [32]byte       `json:"commitHash"`
	Sig        []byte         `json:"sig"`
}

func (s *Server) handleCommitVote(w http.ResponseWriter, r *http.Request) {
	ballot, ok := s.electionByID(w, r)
	if !ok {
		return
	}
	var req commitVoteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := ballot.CommitVote(req.Caller, req.CommitHash, req.Sig); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

type revealVoteRequest struct {
	Caller      common.Address  `json:"caller"`
	CandidateID uint64          `json:"candidateId"`
	Secret      protocol.Secret `json:"secret"`
	Sig         []byte          `json:"sig"`
}

func (s *Server) handleRevealVote(w http.ResponseWriter, r *http.Request) {
	ballot, ok := s.electionByID(w, r)
	if !ok {
		return
	}
	var req revealVoteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := ballot.RevealVote(req.Caller, req.CandidateID, req.Secret, req.Sig); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revealed"})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	ballot, ok := s.electionByID(w, r)
	if !ok {
		return
	}
	results, err := ballot.GetResults()
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	ballot, ok := s.electionByID(w, r)
	if !ok {
		return
	}
	wallet := common.HexToAddress(chi.URLParam(r, "wallet"))
	var req struct {
		ReceiptHash [32]byte `json:"receiptHash"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.verifier.VerifyVoterReceipt(ballot, s.registry, wallet, req.ReceiptHash, s.clock))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err.Error() == "EOF" {
			return true
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		log.Warn().Err(err).Msg("failed to decode request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, err *protocol.Error) {
	writeJSON(w, status, map[string]string{"error": string(err.Kind), "detail": err.Detail})
}

func secondsToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
