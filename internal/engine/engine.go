package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/itemupdate/internal/action"
	"github.com/roach88/itemupdate/internal/archive"
	"github.com/roach88/itemupdate/internal/ir"
	"github.com/roach88/itemupdate/internal/repo"
	"github.com/roach88/itemupdate/internal/store"
)

// DefaultCommandName is the program name written into undo commands.
const DefaultCommandName = "itemupdate"

// Ledger records finished runs. Implemented by *store.Store.
type Ledger interface {
	RecordRun(ctx context.Context, r store.RunRecord) error
}

// Config is everything one batch run needs. It replaces process-wide
// state: verbosity lives in Logger, the handle prefix in HandlePrefix.
type Config struct {
	// SourceDir is the source archive: one subdirectory per item.
	SourceDir string

	Repository repo.Repository
	Actions    *action.Registry

	// EPerson names the operator in provenance notes.
	EPerson string

	// ItemField identifies items; empty means dc.identifier.uri by handle.
	ItemField    string
	HandlePrefix string

	DryRun       bool
	SuppressUndo bool
	Provenance   bool

	// CommandName, ConfigFile and DBPath are written into the undo command.
	CommandName string
	ConfigFile  string
	DBPath      string

	Logger  *slog.Logger
	Now     func() time.Time
	RunIDs  RunIDGenerator
	Metrics Metrics

	// Ledger is optional.
	Ledger Ledger
}

// ItemResult is the outcome of one item directory.
type ItemResult struct {
	Dir     string        `json:"dir"`
	Handle  string        `json:"handle,omitempty"`
	UndoDir string        `json:"undo_dir,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Err     error         `json:"-"`
}

// OK reports whether the item was processed without error.
func (r ItemResult) OK() bool { return r.Err == nil }

// Summary is the outcome of a batch run.
type Summary struct {
	RunID           string       `json:"run_id"`
	SourceDir       string       `json:"source_dir"`
	UndoDir         string       `json:"undo_dir,omitempty"`
	UndoCommand     string       `json:"undo_command,omitempty"`
	UndoCommandFile string       `json:"undo_command_file,omitempty"`
	DryRun          bool         `json:"dry_run"`
	UndoSuppressed  bool         `json:"undo_suppressed"`
	Items           []ItemResult `json:"items"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
}

// Total is the number of item directories seen.
func (s *Summary) Total() int { return len(s.Items) }

// Succeeded is the number of items processed without error.
func (s *Summary) Succeeded() int {
	n := 0
	for _, r := range s.Items {
		if r.OK() {
			n++
		}
	}
	return n
}

// Failed returns the failed items in processing order.
func (s *Summary) Failed() []ItemResult {
	var out []ItemResult
	for _, r := range s.Items {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// String renders "successful/total".
func (s *Summary) String() string {
	return fmt.Sprintf("%d/%d", s.Succeeded(), s.Total())
}

// Engine runs one batch: every item directory of the source archive
// through the registered actions, strictly one item at a time.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	runIDs  RunIDGenerator
	metrics Metrics
}

// New validates cfg and returns an Engine. A missing repository or an
// empty action registry is a CONFIG error.
func New(cfg Config) (*Engine, error) {
	if cfg.Repository == nil {
		return nil, ir.NewConfigError("engine", "repository is required", nil)
	}
	if cfg.Actions == nil || !cfg.Actions.HasActions() {
		return nil, ir.NewConfigError("engine", "at least one action is required", nil)
	}
	if cfg.SourceDir == "" {
		return nil, ir.NewConfigError("engine", "source directory is required", nil)
	}
	if cfg.HandlePrefix == "" {
		cfg.HandlePrefix = archive.DefaultHandlePrefix
	}

	e := &Engine{
		cfg:     cfg,
		logger:  cfg.Logger,
		now:     cfg.Now,
		runIDs:  cfg.RunIDs,
		metrics: cfg.Metrics,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.runIDs == nil {
		e.runIDs = UUIDv7Generator{}
	}
	if e.metrics == nil {
		e.metrics = NoopMetrics{}
	}
	return e, nil
}

// Run processes the batch. Item failures are recorded on the Summary and
// never abort the run; the returned error is reserved for run-level
// problems (unreadable source, undo directory allocation, cancellation).
// On cancellation the partial Summary is returned with ctx.Err().
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     e.runIDs.Generate(),
		DryRun:    e.cfg.DryRun,
		StartedAt: e.now(),
	}
	logger := e.logger.With("run_id", summary.RunID)

	source, err := filepath.Abs(e.cfg.SourceDir)
	if err != nil {
		return nil, ir.NewConfigError("source", "resolve source directory", err)
	}
	summary.SourceDir = source

	dirs, err := itemDirs(source)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	suppressed := e.cfg.SuppressUndo
	if _, err := os.Stat(filepath.Join(source, archive.SuppressUndoMarker)); err == nil {
		logger.Info("source archive is undo-suppressed", "marker", archive.SuppressUndoMarker)
		suppressed = true
	}
	summary.UndoSuppressed = suppressed
	writeUndo := !suppressed && !e.cfg.DryRun

	if writeUndo {
		summary.UndoDir, err = AllocateUndoDir(source)
		if err != nil {
			return nil, ir.NewConfigError("undo", "allocate undo directory", err)
		}
		logger.Info("undo archive allocated", "undo_dir", summary.UndoDir)
	}

	logger.Info("batch starting",
		"source", source,
		"items", len(dirs),
		"dry_run", e.cfg.DryRun,
		"actions", e.cfg.Actions.Len())

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			logger.Warn("batch cancelled", "processed", summary.Total(), "remaining", len(dirs)-summary.Total())
			e.finish(ctx, logger, summary)
			return summary, err
		}
		res := e.processItem(ctx, logger, filepath.Join(source, dir), summary.UndoDir, writeUndo)
		summary.Items = append(summary.Items, res)
	}

	if writeUndo {
		e.emitUndoCommand(logger, summary)
	}

	e.finish(ctx, logger, summary)
	return summary, nil
}

// emitUndoCommand writes the replay command beside the undo archive. A
// batch whose actions have no inverse gets no command, since replaying
// the archive with no actions is a configuration error.
func (e *Engine) emitUndoCommand(logger *slog.Logger, summary *Summary) {
	undoArgs := e.cfg.Actions.UndoArgs()
	if len(undoArgs) == 0 {
		logger.Warn("undo command not written: actions cannot be undone",
			"actions", strings.Join(e.cfg.Actions.KindsWithoutUndo(), ","),
			"undo_dir", summary.UndoDir)
		return
	}

	summary.UndoCommand = UndoCommand(e.cfg, summary.UndoDir, undoArgs)
	path, err := writeUndoCommand(summary.UndoDir, summary.UndoCommand)
	if err != nil {
		logger.Error("undo command not written", "error", err)
		return
	}
	summary.UndoCommandFile = path
	if kinds := e.cfg.Actions.KindsWithoutUndo(); len(kinds) > 0 {
		logger.Warn("undo command does not reverse every action",
			"actions", strings.Join(kinds, ","))
	}
	logger.Info("undo command written", "path", path)
}

func (e *Engine) finish(ctx context.Context, logger *slog.Logger, summary *Summary) {
	summary.FinishedAt = e.now()
	e.metrics.SetRun(summary.Total(), summary.Succeeded(), summary.FinishedAt)

	if e.cfg.Ledger != nil {
		err := e.cfg.Ledger.RecordRun(context.WithoutCancel(ctx), store.RunRecord{
			RunID:      summary.RunID,
			SourceDir:  summary.SourceDir,
			UndoDir:    summary.UndoDir,
			EPerson:    e.cfg.EPerson,
			Total:      summary.Total(),
			Succeeded:  summary.Succeeded(),
			DryRun:     summary.DryRun,
			StartedAt:  summary.StartedAt,
			FinishedAt: summary.FinishedAt,
		})
		if err != nil {
			logger.Error("run not recorded", "error", err)
		}
	}

	logger.Info("batch complete",
		"succeeded", summary.Succeeded(),
		"total", summary.Total(),
		"summary", summary.String())
}

// processItem runs the pipeline for one item directory inside its own
// session. Any failure rolls the session back and removes the partial
// undo sub-archive.
func (e *Engine) processItem(ctx context.Context, logger *slog.Logger, dir, undoRoot string, writeUndo bool) (res ItemResult) {
	name := filepath.Base(dir)
	logger = logger.With("item_dir", name)
	start := e.now()
	res.Dir = name

	var (
		sess     repo.Session
		undoPath string
		done     bool
	)
	fail := func(stage string, err error) ItemResult {
		res.Err = newItemError(name, stage, err)
		res.Error = res.Err.Error()
		return res
	}
	defer func() {
		if !done {
			if sess != nil {
				if err := sess.Rollback(); err != nil {
					logger.Error("rollback failed", "error", err)
				}
			}
			if undoPath != "" {
				if err := os.RemoveAll(undoPath); err != nil {
					logger.Error("partial undo archive not removed", "path", undoPath, "error", err)
				}
			}
			res.UndoDir = ""
		}

		res.Elapsed = e.now().Sub(start)
		status := StatusOK
		if res.Err != nil {
			status = StatusFailed
			logger.Error("item failed", "kind", ir.KindOf(res.Err), "error", res.Err)
		} else {
			logger.Info("item updated", "handle", res.Handle)
		}
		e.metrics.ObserveItem(status, res.Elapsed)
	}()

	var err error
	sess, err = e.cfg.Repository.Begin(ctx)
	if err != nil {
		sess = nil
		return fail("begin", ir.WrapStoreError("begin session", err))
	}

	ia, err := archive.Load(ctx, sess, dir, archive.LoadOptions{
		ItemField:    e.cfg.ItemField,
		HandlePrefix: e.cfg.HandlePrefix,
	})
	if err != nil {
		return fail("load", err)
	}
	res.Handle = ia.Item().Handle
	logger = logger.With("handle", res.Handle)

	env := action.Env{
		Session:      sess,
		Logger:       logger,
		Now:          e.now,
		DryRun:       e.cfg.DryRun,
		SuppressUndo: !writeUndo,
		Provenance:   e.cfg.Provenance,
		EPerson:      e.cfg.EPerson,
	}
	for a := range e.cfg.Actions.All() {
		if err := a.Execute(ctx, ia, env); err != nil {
			e.metrics.IncAction(string(a.Kind()), StatusFailed)
			return fail(string(a.Kind()), err)
		}
		e.metrics.IncAction(string(a.Kind()), StatusOK)
	}

	if e.cfg.DryRun {
		done = true
		if err := sess.Rollback(); err != nil {
			return fail("rollback", ir.WrapStoreError("rollback dry run", err))
		}
		return res
	}

	if err := sess.TouchItem(ctx, ia.Item()); err != nil {
		return fail("touch", ir.WrapStoreError("touch item", err))
	}

	if writeUndo {
		undoPath, err = ia.WriteUndo(undoRoot)
		if err != nil {
			return fail("undo", err)
		}
		res.UndoDir = undoPath
	}

	if err := sess.Commit(); err != nil {
		return fail("commit", ir.WrapStoreError("commit", err))
	}
	done = true
	return res
}

// itemDirs lists the immediate subdirectories of source in lexical order.
// Symbolic links to directories count as item directories.
func itemDirs(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, ir.NewConfigError("source", "source directory is not readable", err)
	}
	if !info.IsDir() {
		return nil, ir.NewConfigError("source", fmt.Sprintf("%s is not a directory", source), nil)
	}

	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, ir.NewConfigError("source", "list source directory", err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			if fi, err := os.Stat(filepath.Join(source, entry.Name())); err == nil && fi.IsDir() {
				dirs = append(dirs, entry.Name())
			}
		}
	}
	return dirs, nil
}
