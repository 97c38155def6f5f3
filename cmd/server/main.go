package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"codeblocks-live/internal/api"
	"codeblocks-live/internal/db"
	"codeblocks-live/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	dbPath := os.Getenv("CODEBLOCKS_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/codeblocks.db"
	}

	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	hub := ws.NewHub(database)
	if ms := os.Getenv("MENTOR_GRACE_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			hub.SetGraceDelay(time.Duration(v) * time.Millisecond)
		}
	}
	go hub.Run()

	apiHandler := api.New(hub, database)

	// WebSocket endpoint
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})

	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/codeblocks", apiHandler.CodeBlocksRouter)
	http.HandleFunc("/codeblocks/", apiHandler.CodeBlocksRouter)

	// Apply CORS middleware
	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		database.Close()
		os.Exit(0)
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}

	log.Printf("Code blocks server starting on :%s", port)
	log.Printf("Database: %s", dbPath)
	log.Println("Endpoints:")
	log.Println("  - WebSocket:  /ws")
	log.Println("  - Health:     GET /health")
	log.Println("  - Stats:      GET /api/stats")
	log.Println("  - Blocks:     GET /codeblocks")
	log.Println("  - Block:      GET /codeblocks/{id}")

	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
