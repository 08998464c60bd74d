package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saldang/grezzi/internal/jobs"
	"github.com/saldang/grezzi/internal/model"
	"github.com/saldang/grezzi/internal/monitoring"
	"github.com/saldang/grezzi/internal/store"
	"github.com/saldang/grezzi/pkg/nocodb"
)

const maxUploadBytes = 64 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job API for uploaded lead files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve", true)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// Uploads are copies owned by the server, so they are always removed.
		queue := jobs.New(st, env.Driver,
			jobs.WithSize(cfg.Server.QueueSize),
			jobs.WithWorkers(cfg.Server.Workers),
			jobs.WithRemoveInput(true),
		)
		queue.Start(ctx)

		api := &apiServer{
			queue:     queue,
			store:     st,
			metrics:   monitoring.NewCollector(st, queue),
			nocodb:    env.NocoDB,
			uploadDir: cfg.Pipeline.UploadDir,
			outputDir: cfg.Pipeline.OutputDir,
			rawDir:    cfg.Pipeline.RawCSVDir,
			cleanDir:  cfg.Pipeline.CleanCSVDir,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return queue.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// submitter enqueues uploaded files.
type submitter interface {
	Submit(ctx context.Context, file, tableID string) (*model.Job, error)
}

// apiServer serves uploads, job status, outputs and the NocoDB proxy.
type apiServer struct {
	queue     submitter
	store     store.Store
	metrics   *monitoring.Collector
	nocodb    nocodb.Client // nil disables the /bases and /tables routes
	uploadDir string
	outputDir string
	rawDir    string
	cleanDir  string
}

func (s *apiServer) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/metrics", s.handleMetrics)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
	})

	r.Get("/outputs", s.handleListOutputs)
	r.Get("/outputs/{name}", s.handleDownloadOutput)
	r.Delete("/outputs", s.handleClear(s.outputDir))
	r.Delete("/artifacts", s.handleClear(s.rawDir, s.cleanDir))

	r.Get("/bases", s.handleListBases)
	r.Get("/bases/{id}/tables", s.handleListTables)
	r.Post("/tables", s.handleCreateTable)

	return r
}

type acceptedJob struct {
	ID     string `json:"id"`
	File   string `json:"file"`
	Status string `json:"status"`
}

type rejectedFile struct {
	File   string `json:"file"`
	Error  string `json:"error"`
	status int
}

// handleUpload stores every part sent as "file" or "files" and queues one
// job per file, all bound to the same table_id.
func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var parts []*multipart.FileHeader
	for _, field := range []string{"file", "files"} {
		parts = append(parts, r.MultipartForm.File[field]...)
	}
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	for _, hdr := range parts {
		name := filepath.Base(hdr.Filename)
		if name == "." || name == string(filepath.Separator) || !isInputFile(name) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: file must be .xlsx or .csv", hdr.Filename))
			return
		}
	}

	tableID := r.FormValue("table_id")
	accepted := []acceptedJob{}
	rejected := []rejectedFile{}
	for _, hdr := range parts {
		name := filepath.Base(hdr.Filename)
		job, rej := s.submitUpload(r.Context(), hdr, name, tableID)
		if rej != nil {
			rejected = append(rejected, *rej)
			continue
		}
		accepted = append(accepted, acceptedJob{ID: job.ID, File: name, Status: string(job.State)})
	}

	if len(accepted) == 0 {
		writeError(w, rejected[0].status, rejected[0].Error)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobs":     accepted,
		"rejected": rejected,
	})
}

func (s *apiServer) submitUpload(ctx context.Context, hdr *multipart.FileHeader, name, tableID string) (*model.Job, *rejectedFile) {
	reject := func(status int, msg string) *rejectedFile {
		return &rejectedFile{File: name, Error: msg, status: status}
	}

	src, err := hdr.Open()
	if err != nil {
		zap.L().Error("open upload failed", zap.String("file", name), zap.Error(err))
		return nil, reject(http.StatusBadRequest, "could not read upload")
	}
	defer src.Close() //nolint:errcheck

	path, err := saveUpload(s.uploadDir, name, src)
	if err != nil {
		zap.L().Error("save upload failed", zap.String("file", name), zap.Error(err))
		return nil, reject(http.StatusInternalServerError, "could not store upload")
	}

	job, err := s.queue.Submit(ctx, path, tableID)
	if err != nil {
		_ = os.Remove(path)
		switch {
		case errors.Is(err, jobs.ErrQueueFull):
			return nil, reject(http.StatusServiceUnavailable, "job queue is full, retry later")
		case errors.Is(err, jobs.ErrClosed):
			return nil, reject(http.StatusServiceUnavailable, "server is shutting down")
		}
		zap.L().Error("submit job failed", zap.String("file", name), zap.Error(err))
		return nil, reject(http.StatusInternalServerError, "could not create job")
	}
	return job, nil
}

// saveUpload writes src under dir with a unique suffix, so uploads that
// share a name never overwrite each other or each other's outputs.
func saveUpload(dir, name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "create upload dir")
	}
	ext := filepath.Ext(name)
	stem := strings.ReplaceAll(strings.TrimSuffix(name, ext), "*", "_")
	dst, err := os.CreateTemp(dir, stem+"_*"+ext)
	if err != nil {
		return "", eris.Wrap(err, "create upload file")
	}
	path := dst.Name()
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close() //nolint:errcheck
		_ = os.Remove(path)
		return "", eris.Wrap(err, "write upload file")
	}
	return path, eris.Wrap(dst.Close(), "close upload file")
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.JobFilter{State: model.JobState(q.Get("state"))}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	list, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		zap.L().Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	if list == nil {
		list = []model.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		zap.L().Error("get job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = n
	}
	snap, err := s.metrics.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("collect metrics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not collect metrics")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type outputFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func (s *apiServer) handleListOutputs(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil && !os.IsNotExist(err) {
		zap.L().Error("list outputs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list outputs")
		return
	}

	files := []outputFile{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, outputFile{Name: e.Name(), Size: info.Size(), Modified: info.ModTime().UTC()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	writeJSON(w, http.StatusOK, files)
}

func (s *apiServer) handleDownloadOutput(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	path := filepath.Join(s.outputDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// handleClear deletes the regular files directly under dirs. Missing
// directories count as empty.
func (s *apiServer) handleClear(dirs ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		removed := 0
		for _, dir := range dirs {
			n, err := clearDir(dir)
			removed += n
			if err != nil {
				zap.L().Error("clear dir failed", zap.String("dir", dir), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "could not clear files")
				return
			}
		}
		zap.L().Info("cleared files", zap.Strings("dirs", dirs), zap.Int("removed", removed))
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	}
}

func clearDir(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "read dir")
	}
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, eris.Wrapf(err, "remove %s", e.Name())
		}
		removed++
	}
	return removed, nil
}

func (s *apiServer) handleListBases(w http.ResponseWriter, r *http.Request) {
	if s.nocodb == nil {
		writeError(w, http.StatusServiceUnavailable, "nocodb is not configured")
		return
	}
	bases, err := s.nocodb.ListBases(r.Context())
	if err != nil {
		zap.L().Error("list bases failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not list bases")
		return
	}
	writeJSON(w, http.StatusOK, bases)
}

func (s *apiServer) handleListTables(w http.ResponseWriter, r *http.Request) {
	if s.nocodb == nil {
		writeError(w, http.StatusServiceUnavailable, "nocodb is not configured")
		return
	}
	tables, err := s.nocodb.ListTables(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("list tables failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not list tables")
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *apiServer) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	if s.nocodb == nil {
		writeError(w, http.StatusServiceUnavailable, "nocodb is not configured")
		return
	}
	var req struct {
		BaseID    string `json:"base_id"`
		TableName string `json:"table_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BaseID == "" || req.TableName == "" {
		writeError(w, http.StatusBadRequest, "base_id and table_name are required")
		return
	}

	table, err := s.nocodb.CreateTable(r.Context(), req.BaseID, req.TableName)
	if err != nil {
		zap.L().Error("create table failed", zap.String("base_id", req.BaseID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not create table")
		return
	}
	writeJSON(w, http.StatusCreated, table)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
