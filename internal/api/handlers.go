package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"codeblocks-live/internal/db"
	"codeblocks-live/internal/ws"
)

type API struct {
	hub      *ws.Hub
	database *db.Database
}

func New(hub *ws.Hub, database *db.Database) *API {
	return &API{
		hub:      hub,
		database: database,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err == nil {
			stats["block_count"] = dbStats["block_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Code block handlers

// CodeBlocksRouter serves GET /codeblocks and GET /codeblocks/{id}.
func (a *API) CodeBlocksRouter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/codeblocks"), "/")
	if id == "" {
		a.listCodeBlocks(w)
		return
	}
	a.getCodeBlock(w, id)
}

func (a *API) listCodeBlocks(w http.ResponseWriter) {
	blocks, err := a.database.ListCodeBlocks()
	if err != nil {
		log.Printf("Error listing code blocks: %v", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to fetch code blocks")
		return
	}
	if blocks == nil {
		blocks = []db.CodeBlock{}
	}
	jsonResponse(w, http.StatusOK, blocks)
}

func (a *API) getCodeBlock(w http.ResponseWriter, id string) {
	block, err := a.database.GetCodeBlock(id)
	if errors.Is(err, db.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "Code block not found")
		return
	}
	if err != nil {
		log.Printf("Error getting code block %s: %v", id, err)
		errorResponse(w, http.StatusInternalServerError, "Could not fetch code block")
		return
	}
	jsonResponse(w, http.StatusOK, block)
}
