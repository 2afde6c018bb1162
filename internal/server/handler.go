// Package server implements the mint API and static frontend of the
// inscription service.
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/execute007/x1punks/internal/alloc"
	"github.com/execute007/x1punks/internal/config"
	"github.com/execute007/x1punks/internal/pipeline"
	"github.com/execute007/x1punks/internal/punks"
	"github.com/execute007/x1punks/internal/state"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// Server owns the HTTP surface of the mint service.
type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	mints  *state.MintState
	index  *state.InscriptionIndex
	pipe   *pipeline.Pipeline
	traits *punks.TraitTable

	// reserved holds ids handed to in-flight provisioning runs so two
	// concurrent requests can never receive the same punk.
	reserved *alloc.ReservationSet
	// allocMu guards the pick-then-claim sequence.
	allocMu sync.Mutex
}

// New creates a Server over the opened state documents.
func New(cfg *config.Config, mints *state.MintState, index *state.InscriptionIndex, pipe *pipeline.Pipeline, traits *punks.TraitTable, log *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		mints:    mints,
		index:    index,
		pipe:     pipe,
		traits:   traits,
		reserved: alloc.NewReservationSet(),
	}
}

// Handler creates the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/mints", s.handleMints)
	mux.HandleFunc("GET /api/inscriptions", s.handleInscriptions)
	mux.HandleFunc("GET /api/inscription/{id}", s.handleInscription)
	mux.HandleFunc("GET /api/image/{id}", s.handleImage)
	mux.HandleFunc("GET /api/program", s.handleProgram)
	mux.HandleFunc("POST /api/inscribe", s.handleInscribe)

	mux.Handle("GET /generated/", http.StripPrefix("/generated/", http.FileServer(http.Dir(s.cfg.GeneratedDir))))
	mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.PublicDir)))

	return applyMiddleware(mux,
		recoveryMiddleware(s.log),
		loggingMiddleware(s.log),
		requestIDMiddleware,
		corsMiddleware,
	)
}

// punkID parses and bounds-checks the {id} path value.
func punkID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 || id >= config.TotalSupply {
		return 0, errors.New("Invalid punk ID")
	}
	return id, nil
}

func (s *Server) handleMints(w http.ResponseWriter, r *http.Request) {
	mints := s.mints.Mints()
	// The permaweb URL may have appeared since the mint was recorded.
	for i := range mints {
		mints[i].ImageURL = s.pipe.ImageURL(mints[i].ID)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"program":        config.ProgramName,
		"collectionName": config.CollectionName,
		"mintedCount":    s.mints.Count(),
		"totalSupply":    config.TotalSupply,
		"mints":          mints,
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id, err := punkID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"punkId":   id,
		"imageUrl": s.pipe.ImageURL(id),
	})
}

func (s *Server) handleInscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"program":        config.ProgramName,
		"protocol":       "metaplex-inscription",
		"chain":          "x1",
		"totalInscribed": s.index.Count(),
		"lastUpdated":    nullableTime(s.index.LastUpdated()),
		"inscriptions":   s.index.Inscriptions(),
	})
}

func (s *Server) handleProgram(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"program":        config.ProgramName,
		"collection":     config.CollectionName,
		"symbol":         config.CollectionSymbol,
		"protocol":       "metaplex-inscription",
		"chain":          "x1",
		"rpc":            s.cfg.RPCURL,
		"totalSupply":    config.TotalSupply,
		"mintedCount":    s.mints.Count(),
		"inscribedCount": s.index.Count(),
		"lastUpdated":    nullableTime(s.index.LastUpdated()),
	})
}

func (s *Server) handleInscription(w http.ResponseWriter, r *http.Request) {
	id, err := punkID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var image interface{}
	imageSize := 0
	if data, err := os.ReadFile(punks.ImagePath(s.cfg.GeneratedDir, id)); err == nil {
		image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
		imageSize = len(data)
	}

	var onChain interface{}
	ins, inscribed := s.index.Get(id)
	if inscribed {
		onChain = ins.OnChain
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"punkId":    id,
		"metadata":  punks.BuildMetadata(s.traits, id, s.cfg.InscriptionProgram),
		"image":     image,
		"imageSize": imageSize,
		"onChain":   onChain,
		"inscribed": inscribed,
	})
}

// inscribeRequest is the mint request body. The payment signature is
// recorded with the mint but not verified server-side; payment happens
// client-side before the request.
type inscribeRequest struct {
	Wallet      string `json:"wallet"`
	Quantity    int    `json:"quantity"`
	TxSignature string `json:"txSignature"`
}

func (s *Server) handleInscribe(w http.ResponseWriter, r *http.Request) {
	var req inscribeRequest
	if err := readJSON(r, maxRequestBody, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}
	if req.Wallet == "" || req.Quantity == 0 || req.TxSignature == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Missing required fields: wallet, quantity, txSignature",
		})
		return
	}
	if req.Quantity < 1 || req.Quantity > 10 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Quantity must be 1-10"})
		return
	}

	s.log.Info("inscription request",
		"wallet", req.Wallet, "quantity", req.Quantity, "payment", req.TxSignature)

	minted := make([]state.MintRecord, 0, req.Quantity)

	for i := 0; i < req.Quantity; i++ {
		id, err := s.reservePunk()
		if err != nil {
			// Collection exhausted mid-batch: whatever completed stays
			// minted, the caller learns which ones.
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":         "Sold out!",
				"partialMinted": minted,
			})
			return
		}

		rec, err := s.inscribeOne(r, id, &req)
		s.reserved.Release(id)
		if err != nil {
			s.log.Error("inscription failed", "punk", id, "error", err)

			if len(minted) > 0 {
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"success":     true,
					"partial":     true,
					"requested":   req.Quantity,
					"completed":   len(minted),
					"minted":      minted,
					"totalMinted": s.mints.Count(),
					"error": fmt.Sprintf("Completed %d/%d. Failed on punk #%d: %v",
						len(minted), req.Quantity, id, err),
				})
				return
			}

			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error":  fmt.Sprintf("Inscription failed: %v", err),
				"punkId": id,
			})
			return
		}

		minted = append(minted, *rec)
		s.log.Info("punk inscribed", "punk", id, "progress", fmt.Sprintf("%d/%d", i+1, req.Quantity))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"minted":      minted,
		"totalMinted": s.mints.Count(),
	})
}

// reservePunk picks a random unassigned id and claims it until the caller
// releases it. Minted and in-flight ids are both off the table.
func (s *Server) reservePunk() (int, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	assigned := s.reserved.Union(s.mints.MintedIDs())
	for {
		id, err := alloc.Pick(assigned, config.TotalSupply)
		if err != nil {
			return 0, err
		}
		if s.reserved.Claim(id) {
			return id, nil
		}
		assigned[id] = struct{}{}
	}
}

// inscribeOne provisions a single punk and persists both state documents.
func (s *Server) inscribeOne(r *http.Request, id int, req *inscribeRequest) (*state.MintRecord, error) {
	prov, err := s.pipe.Provision(r.Context(), id, req.Wallet)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ins := state.Inscription{
		PunkID:      id,
		Name:        punks.Name(id),
		Symbol:      config.CollectionSymbol,
		Owner:       req.Wallet,
		InscribedAt: now,
		OnChain: state.OnChainRefs{
			MintAddress:  prov.MintAddress,
			JSONAccount:  prov.JSONAccount,
			ImageAccount: prov.ImageAccount,
			MemoSig:      prov.MemoSignature,
			JSONSize:     prov.JSONSize,
			ImageSize:    prov.ImageSize,
			ImageHash:    prov.ImageHash,
		},
		Metadata: prov.Metadata,
	}
	if err := s.index.Add(ins); err != nil && !errors.Is(err, state.ErrAlreadyInscribed) {
		return nil, fmt.Errorf("index inscription: %w", err)
	}

	rec := state.MintRecord{
		ID:          id,
		Name:        punks.Name(id),
		Symbol:      config.CollectionSymbol,
		Owner:       req.Wallet,
		ImageURL:    s.pipe.ImageURL(id),
		PaymentSig:  req.TxSignature,
		MintAddress: prov.MintAddress,
		InscribedAt: now,
		OnChain:     true,
		Inscription: state.InscriptionRefs{
			JSONAccount:  prov.JSONAccount,
			ImageAccount: prov.ImageAccount,
			MemoSig:      prov.MemoSignature,
			JSONSize:     prov.JSONSize,
			ImageSize:    prov.ImageSize,
			ImageHash:    prov.ImageHash,
		},
	}
	if err := s.mints.Append(rec); err != nil {
		return nil, fmt.Errorf("record mint: %w", err)
	}
	return &rec, nil
}

// nullableTime renders the zero time as JSON null.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
