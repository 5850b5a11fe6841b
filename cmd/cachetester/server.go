package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/core"
	"github.com/emmersive/akamai-cache-tester/internal/input"
	"github.com/emmersive/akamai-cache-tester/internal/networking"
	"github.com/emmersive/akamai-cache-tester/internal/report"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API consumed by the web front end",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "0.0.0.0", "interface to bind the API server to")
	serveCmd.Flags().Int("port", 5000, "port the API server listens on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return err
	}
	// The server carries no probe source of its own; every request brings
	// one, so only the base knobs are validated here.
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := utils.NewLogger(cfg.LogLevel, cfg.NoColor, cfg.Silent, cfg.LogFile)

	api := newAPIServer(cfg, logger)
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.ServerHost, strconv.Itoa(cfg.ServerPort)),
		Handler:           buildMux(api),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// apiServer carries the base configuration and logger shared by handlers.
// Request-scoped knobs are always applied to a clone of the base config.
type apiServer struct {
	cfg    *config.Config
	logger utils.Logger
}

func newAPIServer(cfg *config.Config, logger utils.Logger) *apiServer {
	return &apiServer{cfg: cfg, logger: logger}
}

func buildMux(s *apiServer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/test", s.handleTest)
	mux.HandleFunc("/export", s.handleExport)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// testRequest is the /test body. Pointer fields distinguish "absent" from
// zero values so absent knobs fall back to the server's base config.
type testRequest struct {
	SitemapURL string   `json:"sitemap_url"`
	CheckAEM   *bool    `json:"check_aem"`
	BatchSize  *int     `json:"batch_size"`
	BatchDelay *float64 `json:"batch_delay"`
	MaxURLs    *int     `json:"max_urls"`
}

type testResponse struct {
	Success   bool               `json:"success"`
	Summary   core.RunSummary    `json:"summary"`
	Results   []core.ProbeResult `json:"results"`
	Timestamp time.Time          `json:"timestamp"`
	RunID     string             `json:"run_id"`
}

type exportRequest struct {
	Results []core.ProbeResult `json:"results"`
}

func (s *apiServer) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SitemapURL) == "" {
		s.writeError(w, http.StatusBadRequest, "Please provide a sitemap URL")
		return
	}

	cfg := s.requestConfig(req)
	if err := cfg.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	client, err := networking.NewClient(cfg, s.logger)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	source := input.NewSitemapSource(cfg, client, s.logger, cfg.SitemapURL)
	tester := core.NewTester(cfg, source, client, s.logger)

	runReport, err := tester.Run(r.Context())
	if err != nil {
		if errors.Is(err, core.ErrNoURLs) {
			s.writeError(w, http.StatusBadRequest, "No URLs found in sitemap")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, testResponse{
		Success:   true,
		Summary:   runReport.Summary,
		Results:   runReport.Results,
		Timestamp: runReport.Timestamp,
		RunID:     runReport.RunID,
	})
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.Results) == 0 {
		s.writeError(w, http.StatusBadRequest, "No results to export")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", report.ExportFilename(time.Now())))
	if err := report.WriteCSV(w, req.Results); err != nil {
		s.logger.Errorf("CSV export failed: %v", err)
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestConfig overlays request-scoped knobs on a clone of the base
// configuration. batch_delay arrives as seconds (float, matching the
// front end) and is converted to a duration here.
func (s *apiServer) requestConfig(req testRequest) *config.Config {
	cfg := s.cfg.Clone()
	cfg.SitemapURL = strings.TrimSpace(req.SitemapURL)
	cfg.TargetsFile = ""
	if req.CheckAEM != nil {
		cfg.CheckAEM = *req.CheckAEM
	}
	if req.BatchSize != nil {
		cfg.BatchSize = *req.BatchSize
	}
	if req.BatchDelay != nil {
		cfg.BatchDelay = time.Duration(*req.BatchDelay * float64(time.Second))
	}
	if req.MaxURLs != nil {
		cfg.MaxURLs = *req.MaxURLs
	}
	return cfg
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
