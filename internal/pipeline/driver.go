// Package pipeline drives one lead file through normalization, the clean
// split, reconciliation and forwarding, writing the CSV artifacts and the
// run log along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saldang/grezzi/internal/config"
	"github.com/saldang/grezzi/internal/fetcher"
	"github.com/saldang/grezzi/internal/model"
	"github.com/saldang/grezzi/internal/normalize"
	"github.com/saldang/grezzi/internal/reconcile"
)

// ErrPersistence marks a failure to deliver the reconciled table to the
// external table service. Local artifacts are kept.
var ErrPersistence = errors.New("pipeline: persistence failure")

// PersistenceError carries the table and cause of a failed forward.
type PersistenceError struct {
	TableID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pipeline: forward to table %s: %v", e.TableID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPersistence) match.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Forwarder stores reconciled records in an external table.
type Forwarder interface {
	InsertRecords(ctx context.Context, tableID string, records []map[string]string) error
}

// Observer is told about every state a run enters. err is set only for
// model.JobStateFailed.
type Observer func(state model.JobState, res Result, err error)

// Request describes one run.
type Request struct {
	File        string
	TableID     string
	RemoveInput bool
	Observer    Observer
}

// Result holds the counts and artifact paths of a run.
type Result struct {
	File        string         `json:"file"`
	State       model.JobState `json:"state"`
	RawRows     int            `json:"raw_rows"`
	CleanRows   int            `json:"clean_rows"`
	RemovedRows int            `json:"removed_rows"`
	RawPath     string         `json:"raw_path,omitempty"`
	CleanPath   string         `json:"clean_path,omitempty"`
	FinalPath   string         `json:"final_path,omitempty"`
}

// JobResult converts r to the stored job summary.
func (r Result) JobResult() model.JobResult {
	return model.JobResult{
		RawRows:     r.RawRows,
		CleanRows:   r.CleanRows,
		RemovedRows: r.RemovedRows,
		FinalPath:   r.FinalPath,
	}
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the time source used to stamp final file names.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// Driver runs files through the cleaning stages. It is safe for
// concurrent use; the registry behind the reconciler is read-only.
type Driver struct {
	cfg        config.PipelineConfig
	normalizer *normalize.Normalizer
	reconciler *reconcile.Reconciler
	forwarder  Forwarder
	runLog     *RunLog
	now        func() time.Time

	removed atomic.Int64
}

// NewDriver builds a Driver. A nil forwarder skips forwarding.
func NewDriver(cfg config.PipelineConfig, n *normalize.Normalizer, rc *reconcile.Reconciler, fw Forwarder, opts ...Option) *Driver {
	d := &Driver{
		cfg:        cfg,
		normalizer: n,
		reconciler: rc,
		forwarder:  fw,
		runLog:     NewRunLog(cfg.RunLog),
		now:        time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// RemovedTotal returns the rows removed by every file this driver has
// processed so far.
func (d *Driver) RemovedTotal() int64 {
	return d.removed.Load()
}

// Run processes one file. On failure the returned Result still holds the
// counts and paths reached so far.
func (d *Driver) Run(ctx context.Context, req Request) (*Result, error) {
	log := zap.L().With(zap.String("file", req.File))
	res := &Result{File: req.File}
	logged := false

	enter := func(s model.JobState) {
		res.State = s
		log.Debug("pipeline: state", zap.String("state", string(s)))
		if req.Observer != nil {
			req.Observer(s, *res, nil)
		}
	}
	fail := func(err error) (*Result, error) {
		if !logged {
			if logErr := d.runLog.Append(context.WithoutCancel(ctx), req.File, res.RawRows, 0); logErr != nil {
				log.Warn("pipeline: run log append failed", zap.Error(logErr))
			}
		}
		res.State = model.JobStateFailed
		log.Error("pipeline: run failed", zap.Error(err))
		if req.Observer != nil {
			req.Observer(model.JobStateFailed, *res, err)
		}
		return res, err
	}

	defer func() {
		// Inputs are removed only once their counts are on record.
		if req.RemoveInput && logged {
			if err := os.Remove(req.File); err != nil && !os.IsNotExist(err) {
				log.Warn("pipeline: remove input failed", zap.Error(err))
			}
		}
	}()

	tbl, err := fetcher.ReadTable(ctx, req.File)
	if err != nil {
		return fail(err)
	}
	enter(model.JobStateLoaded)

	norm, err := d.normalizer.Normalize(ctx, tbl)
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: normalize"))
	}
	res.RawRows = norm.OutputRows
	enter(model.JobStateNormalized)

	clean := normalize.CleanSubset(norm.Table)
	res.CleanRows = clean.Len()
	res.RemovedRows = res.RawRows - res.CleanRows
	enter(model.JobStateSplit)

	stem := strings.TrimSuffix(filepath.Base(req.File), filepath.Ext(req.File))

	res.RawPath = filepath.Join(d.cfg.RawCSVDir, stem+"_raw.csv")
	if err := fetcher.WriteCSV(res.RawPath, norm.Table); err != nil {
		return fail(eris.Wrap(err, "pipeline: write raw csv"))
	}
	enter(model.JobStatePersistedRaw)

	res.CleanPath = filepath.Join(d.cfg.CleanCSVDir, stem+"_cleaned.csv")
	if err := fetcher.WriteCSV(res.CleanPath, clean); err != nil {
		return fail(eris.Wrap(err, "pipeline: write cleaned csv"))
	}
	if err := d.runLog.Append(context.WithoutCancel(ctx), req.File, res.RawRows, res.CleanRows); err != nil {
		log.Warn("pipeline: run log append failed", zap.Error(err))
	} else {
		logged = true
	}
	total := d.removed.Add(int64(res.RemovedRows))
	log.Info("pipeline: file cleaned",
		zap.Int("rows", res.RawRows),
		zap.Int("clean_rows", res.CleanRows),
		zap.Int64("removed_total", total),
	)
	enter(model.JobStatePersistedMid)

	final := d.reconciler.Apply(clean)
	enter(model.JobStateReconciled)

	res.FinalPath = filepath.Join(d.cfg.OutputDir, stem+"_clean_"+d.now().Format("20060102_150405")+".csv")
	if err := fetcher.WriteCSV(res.FinalPath, final); err != nil {
		return fail(eris.Wrap(err, "pipeline: write final csv"))
	}
	enter(model.JobStateFinalized)

	if req.TableID == "" || d.forwarder == nil {
		log.Info("pipeline: forwarding skipped", zap.String("table_id", req.TableID))
	} else {
		if err := d.forwarder.InsertRecords(ctx, req.TableID, records(final)); err != nil {
			return fail(&PersistenceError{TableID: req.TableID, Err: err})
		}
		log.Info("pipeline: records forwarded",
			zap.String("table_id", req.TableID),
			zap.Int("records", final.Len()),
		)
	}
	enter(model.JobStateForwarded)

	return res, nil
}

func records(t *model.Table) []map[string]string {
	out := make([]map[string]string, len(t.Rows))
	for i, r := range t.Rows {
		m := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			m[c] = r[c]
		}
		out[i] = m
	}
	return out
}
