package dbftdebug

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftengine"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
)

type handler struct {
	log *slog.Logger

	status StatusSource
	blocks dbftstore.BlockStore
}

// NewHandler returns the router behind [NewHTTPServer].
//
// Routes:
//
//	GET /status          engine status as JSON
//	GET /snapshot        engine snapshot bytes
//	GET /blocks/last     highest stored block as JSON
//	GET /blocks/{height} stored block at height as JSON
//
// The status routes are omitted if cfg.Status is nil,
// and the block routes if cfg.Blocks is nil.
func NewHandler(log *slog.Logger, cfg HTTPServerConfig) http.Handler {
	h := handler{
		log:    log,
		status: cfg.Status,
		blocks: cfg.Blocks,
	}

	r := mux.NewRouter()

	if h.status != nil {
		r.HandleFunc("/status", h.HandleStatus).Methods("GET")
		r.HandleFunc("/snapshot", h.HandleSnapshot).Methods("GET")
	}

	if h.blocks != nil {
		r.HandleFunc("/blocks/last", h.HandleLastBlock).Methods("GET")
		r.HandleFunc("/blocks/{height:[0-9]+}", h.HandleBlock).Methods("GET")
	}

	return r
}

type jsonStatus struct {
	Height       uint64
	View         dbftconsensus.ViewNumber
	Phase        string
	ViewChanging bool
	Primary      dbftconsensus.ValidatorID

	// Empty when no proposal is bound.
	Proposal string `json:",omitempty"`

	Prepared    int
	Committed   int
	ChangeViews int

	IsValidator bool
	Validator   *dbftconsensus.ValidatorID `json:",omitempty"`
}

func toJSONStatus(s dbftengine.Status) jsonStatus {
	out := jsonStatus{
		Height:       s.Height,
		View:         s.View,
		Phase:        s.Phase.String(),
		ViewChanging: s.ViewChanging,
		Primary:      s.Primary,
		Prepared:     s.Prepared,
		Committed:    s.Committed,
		ChangeViews:  s.ChangeViews,
		IsValidator:  s.IsValidator,
	}
	if s.HasProposal {
		out.Proposal = s.Proposal.String()
	}
	if s.IsValidator {
		v := s.Validator
		out.Validator = &v
	}
	return out
}

type jsonWitness struct {
	Validator dbftconsensus.ValidatorID
	Signature string
}

type jsonBlock struct {
	Hash string

	Version       uint32
	Index         uint32
	PrevHash      string
	MerkleRoot    string
	TimestampMS   uint64
	Nonce         uint64
	PrimaryIndex  uint8
	NextConsensus string

	TxHashes  []string
	Witnesses []jsonWitness
}

func toJSONBlock(b dbftconsensus.Block) jsonBlock {
	hdr := b.Header
	out := jsonBlock{
		Hash: b.Hash().String(),

		Version:       hdr.Version,
		Index:         hdr.Index,
		PrevHash:      hdr.PrevHash.String(),
		MerkleRoot:    hdr.MerkleRoot.String(),
		TimestampMS:   hdr.TimestampMS,
		Nonce:         hdr.Nonce,
		PrimaryIndex:  hdr.PrimaryIndex,
		NextConsensus: hex.EncodeToString(hdr.NextConsensus[:]),

		TxHashes:  make([]string, len(b.TxHashes)),
		Witnesses: make([]jsonWitness, len(b.Witnesses)),
	}
	for i, tx := range b.TxHashes {
		out.TxHashes[i] = tx.String()
	}
	for i, w := range b.Witnesses {
		out.Witnesses[i] = jsonWitness{
			Validator: w.Validator,
			Signature: hex.EncodeToString(w.Signature),
		}
	}
	return out
}

func (h handler) HandleStatus(w http.ResponseWriter, req *http.Request) {
	s, err := h.status.Status(req.Context())
	if err != nil {
		h.log.Warn("Failed to get status", "route", "status", "err", err)
		http.Error(w, "failed to get status", http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, "status", toJSONStatus(s))
}

func (h handler) HandleSnapshot(w http.ResponseWriter, req *http.Request) {
	b, err := h.status.Snapshot(req.Context())
	if err != nil {
		h.log.Warn("Failed to get snapshot", "route", "snapshot", "err", err)
		http.Error(w, "failed to get snapshot", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(b); err != nil {
		h.log.Warn("Failed to write snapshot", "err", err)
	}
}

func (h handler) HandleLastBlock(w http.ResponseWriter, req *http.Request) {
	blk, err := h.blocks.LastBlock(req.Context())
	if err != nil {
		if errors.Is(err, dbftstore.ErrNoBlocks) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Warn("Failed to load last block", "err", err)
		http.Error(w, "failed to load block", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, "blocks/last", toJSONBlock(blk))
}

func (h handler) HandleBlock(w http.ResponseWriter, req *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(req)["height"], 10, 64)
	if err != nil {
		http.Error(w, "invalid height", http.StatusBadRequest)
		return
	}

	blk, err := h.blocks.LoadBlock(req.Context(), height)
	if err != nil {
		var nf dbftstore.BlockNotFoundError
		if errors.As(err, &nf) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Warn("Failed to load block", "h", height, "err", err)
		http.Error(w, "failed to load block", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, "blocks", toJSONBlock(blk))
}

func (h handler) writeJSON(w http.ResponseWriter, route string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("Failed to encode response", "route", route, "err", err)
	}
}
