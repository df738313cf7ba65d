// Package server exposes the kiosk HTTP API and the sync-status WebSocket.
//
// The server is the boundary between the UI screens and the core: punches,
// duplicate gating, employee management, history, settings, stats, cleanup
// and sync control all enter through here. Sync status transitions are
// broadcast to WebSocket clients so the completion screen can show the
// indicator without polling.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/kosuda/dakoku/internal/sheets"
	"github.com/kosuda/dakoku/internal/store"
	"github.com/kosuda/dakoku/internal/syncer"
)

// SheetsClient is the slice of the spreadsheet client the server drives
// directly (the syncer holds its own recorder reference).
type SheetsClient interface {
	syncer.Recorder
	TestConnection(ctx context.Context) bool
}

// newSheetsClient builds a real client from a credential pair. Swapped out
// in tests.
var newSheetsClient = func(cfg sheets.Config, logger *log.Logger) (SheetsClient, error) {
	return sheets.New(cfg, logger)
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: ":8737")
	Addr string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8737",
		Logger: log.New(os.Stderr, "[server] ", log.LstdFlags),
	}
}

// Server serves the kiosk API over HTTP.
type Server struct {
	store  *store.Store
	sync   *syncer.Syncer
	logger *log.Logger
	addr   string

	listener net.Listener
	server   *http.Server

	sheetsMu sync.Mutex
	sheets   SheetsClient // nil until a valid credential is configured

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a kiosk server over the given store and syncer.
//
// st may be nil when the local database could not be opened; the server then
// runs degraded: it serves, but store-backed endpoints report unavailable
// and punches fail with a local-save error instead of never reaching a
// listener.
func New(st *store.Store, sy *syncer.Syncer, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		store:   st,
		sync:    sy,
		logger:  config.Logger,
		addr:    config.Addr,
		clients: make(map[*websocket.Conn]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start builds the spreadsheet client from saved settings, begins listening
// and starts the status broadcast loop. Non-blocking; use Stop to shut
// down.
func (s *Server) Start() error {
	// A bad credential disables sync, it never blocks startup.
	if err := s.reloadSheets(s.ctx); err != nil {
		s.logger.Printf("Spreadsheet sync disabled: %v", err)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Kiosk server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and its WebSocket clients.
func (s *Server) Stop() error {
	s.logger.Println("Stopping kiosk server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Kiosk server stopped")
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// routes wires the kiosk API.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/departments", s.handleDepartments)
	mux.HandleFunc("GET /api/departments/{id}/employees", s.handleEmployeesByDepartment)
	mux.HandleFunc("POST /api/employees", s.adminOnly(s.handleAddEmployee))
	mux.HandleFunc("DELETE /api/employees/{id}", s.adminOnly(s.handleDeleteEmployee))

	mux.HandleFunc("POST /api/punch", s.handlePunch)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	mux.HandleFunc("GET /api/settings/{key}", s.adminOnly(s.handleGetSetting))
	mux.HandleFunc("PUT /api/settings/{key}", s.adminOnly(s.handlePutSetting))
	mux.HandleFunc("POST /api/sheets/test", s.adminOnly(s.handleSheetsTest))

	mux.HandleFunc("GET /api/sync/status", s.handleSyncStatus)
	mux.HandleFunc("POST /api/sync/catchup", s.adminOnly(s.handleCatchUp))

	mux.HandleFunc("GET /api/stats", s.adminOnly(s.handleStats))
	mux.HandleFunc("POST /api/cleanup", s.adminOnly(s.handleCleanup))

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// reloadSheets rebuilds the spreadsheet client from saved settings and
// hands it to the syncer. An absent credential pair leaves sync disabled;
// a malformed one is an error the settings screen should see. In degraded
// mode there are no settings to read, so sync stays off.
func (s *Server) reloadSheets(ctx context.Context) error {
	if s.store == nil {
		s.setSheets(nil)
		return nil
	}

	key, _, err := s.store.Setting(ctx, store.SettingServiceAccountKey)
	if err != nil {
		return err
	}
	id, _, err := s.store.Setting(ctx, store.SettingSpreadsheetID)
	if err != nil {
		return err
	}

	if key == "" || id == "" {
		s.setSheets(nil)
		return nil
	}

	client, err := newSheetsClient(sheets.Config{
		ServiceAccountKey: key,
		SpreadsheetID:     id,
	}, s.logger)
	if err != nil {
		s.setSheets(nil)
		return fmt.Errorf("invalid spreadsheet credential: %w", err)
	}

	s.setSheets(client)
	return nil
}

func (s *Server) setSheets(client SheetsClient) {
	s.sheetsMu.Lock()
	s.sheets = client
	s.sheetsMu.Unlock()

	if client == nil {
		s.sync.SetClient(nil)
	} else {
		s.sync.SetClient(client)
	}
}

func (s *Server) sheetsClient() SheetsClient {
	s.sheetsMu.Lock()
	defer s.sheetsMu.Unlock()
	return s.sheets
}

// broadcastLoop relays syncer transitions to WebSocket clients.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	events, cancel := s.sync.Subscribe()
	defer cancel()

	for {
		select {
		case <-s.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Printf("Failed to marshal sync event: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancelWrite := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancelWrite()

				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades the connection and streams sync events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // kiosk UI is served from file:// or localhost
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Status client connected (total: %d)", count)

	// Initial status snapshot so a client never starts blind.
	snapshot, _ := json.Marshal(syncer.Event{Status: s.sync.Status()})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, snapshot)
	cancel()

	go s.readLoop(conn)
}

// readLoop keeps the connection alive and detects disconnects. Client
// messages are not processed.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		count := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Status client disconnected (total: %d)", count)
	} else {
		s.clientsMu.Unlock()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	count := len(s.clients)
	s.clientsMu.RUnlock()

	status := "ok"
	if s.store == nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"clients": count,
	})
}
