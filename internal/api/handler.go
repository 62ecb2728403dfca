package api

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/service"
)

// Handler contains all HTTP handlers for the API.
//
// Every handler reads through the reorder service's shared board caches,
// so HTTP clients and websocket drags see the same optimistic state.
type Handler struct {
	boards  *service.BoardService
	reorder *service.ReorderService
	logger  *log.Logger
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(boards *service.BoardService, reorder *service.ReorderService, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handler{boards: boards, reorder: reorder, logger: logger}
}

// RegisterRoutes sets up all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)

	// Board routes
	mux.HandleFunc("GET /api/v1/boards", h.ListBoards)
	mux.HandleFunc("POST /api/v1/boards", h.CreateBoard)
	mux.HandleFunc("GET /api/v1/boards/{board}", h.GetBoard)
	mux.HandleFunc("GET /api/v1/boards/{board}/totals", h.GetTotals)

	// Group and item routes
	mux.HandleFunc("POST /api/v1/boards/{board}/groups", h.CreateGroup)
	mux.HandleFunc("POST /api/v1/boards/{board}/items", h.CreateItem)

	// Moves
	mux.HandleFunc("POST /api/v1/boards/{board}/moves", h.Move)
}

// Health reports that the server is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Board Handlers ---

// BoardSummary is one entry of the board list.
type BoardSummary struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Groups []model.Group `json:"groups"`
}

// ListBoards returns every board with its groups.
func (h *Handler) ListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.boards.List(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	summaries := make([]BoardSummary, len(boards))
	for i, b := range boards {
		summaries[i] = BoardSummary{ID: b.ID, Name: b.Name, Groups: b.SortedGroups()}
	}
	JSON(w, http.StatusOK, map[string][]BoardSummary{"boards": summaries})
}

// CreateBoardRequest is the JSON body for creating a board.
type CreateBoardRequest struct {
	Name     string `json:"name"`
	Template string `json:"template,omitempty"`
}

// CreateBoard creates a board from a template.
func (h *Handler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	var req CreateBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}
	board, err := h.boards.Create(r.Context(), req.Name, req.Template)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, board)
}

// GetBoard returns the latest snapshot of a board, optimistic moves
// included.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.boards.Get(r.Context(), r.PathValue("board"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, board)
}

// GetTotals returns per-group item counts and value sums.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.reorder.Totals(r.Context(), r.PathValue("board"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, totals)
}

// --- Group and Item Handlers ---

// CreateGroupRequest is the JSON body for creating a group.
type CreateGroupRequest struct {
	Title  string             `json:"title"`
	Kind   string             `json:"kind,omitempty"`
	Color  string             `json:"color,omitempty"`
	Policy *model.GroupPolicy `json:"policy,omitempty"`
}

// CreateGroup appends a group to a board.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}
	if req.Title == "" {
		BadRequest(w, "title is required")
		return
	}
	group, err := h.boards.AddGroup(r.Context(), service.AddGroupInput{
		BoardID: r.PathValue("board"),
		Title:   req.Title,
		Kind:    req.Kind,
		Color:   req.Color,
		Policy:  req.Policy,
	})
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, group)
}

// CreateItemRequest is the JSON body for creating an item.
type CreateItemRequest struct {
	Group    string `json:"group"`
	Title    string `json:"title"`
	Value    int64  `json:"value,omitempty"`
	Assignee string `json:"assignee,omitempty"`
}

// CreateItem adds an item at the end of a group.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}
	if req.Title == "" {
		BadRequest(w, "title is required")
		return
	}
	if req.Group == "" {
		BadRequest(w, "group is required")
		return
	}
	item, err := h.boards.AddItem(r.Context(), service.AddItemInput{
		BoardID:  r.PathValue("board"),
		Group:    req.Group,
		Title:    req.Title,
		Value:    req.Value,
		Assignee: req.Assignee,
	})
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, item)
}

// --- Moves ---

// MoveResponse is the JSON response for a move. Error is set only when the
// move was rolled back.
type MoveResponse struct {
	service.Outcome
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Move runs one drag-and-drop move. A move refused by group policy is
// not an error: it returns 200 with status "rejected". A move the backend
// could not persist returns 503 and is safe to retry.
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var intent model.MoveIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}
	if intent.ItemID == "" || intent.DestinationGroupID == "" {
		BadRequest(w, "item_id and destination_group_id are required")
		return
	}

	out, err := h.reorder.Move(r.Context(), r.PathValue("board"), intent)
	if err != nil {
		if !errors.Is(err, kanerr.ErrPersistence) {
			Error(w, err)
			return
		}
		status, body := errorStatus(err)
		JSON(w, status, MoveResponse{Outcome: out, Error: body.Error, Retryable: body.Retryable})
		return
	}
	JSON(w, http.StatusOK, MoveResponse{Outcome: out})
}
