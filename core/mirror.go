package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"flagftp/config"
	"flagftp/ftpfs"
	"flagftp/protocols"
)

// Result summarizes one run of a task.
type Result struct {
	Transferred int
	Skipped     int
	Failed      int
	Removed     int
	Bytes       int64
}

// Mirror copies files from an FTP server into a sink, one file at a time.
type Mirror struct {
	client  *ftpfs.Client
	history *HistoryManager
	logger  *zap.Logger

	now     func() time.Time
	newSink func(config.Task) (protocols.Sink, error)
}

func NewMirror(client *ftpfs.Client, history *HistoryManager, logger *zap.Logger) *Mirror {
	m := &Mirror{
		client:  client,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
	m.newSink = m.createSink
	return m
}

// taskRun carries the state of a single run of a task.
type taskRun struct {
	config.Task
	root    string // normalized source directory path
	regex   *regexp.Regexp
	cutoff  time.Time
	sink    protocols.Sink
	history *TaskHistory
	logger  *zap.Logger
	result  Result
}

// RunTask mirrors every matching file below cfg.Source that has not been
// transferred before, then prunes mirrored files past the retention window.
// A failure to list the source directory is returned after the history has
// been saved; failures of single files are logged and counted.
func (m *Mirror) RunTask(ctx context.Context, cfg config.Task) (Result, error) {
	logger := m.logger.With(zap.String("task", cfg.Name))
	logger.Info("starting task")

	regex, err := regexp.Compile(cfg.SourceRegex)
	if err != nil {
		return Result{}, fmt.Errorf("invalid regex: %w", err)
	}
	source, err := ftpfs.ParseURI(cfg.Source)
	if err != nil {
		return Result{}, err
	}
	source, err = ftpfs.Normalize(source)
	if err != nil {
		return Result{}, err
	}

	sink, err := m.newSink(cfg)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create sink: %w", err)
	}
	if err := sink.Init(); err != nil {
		return Result{}, fmt.Errorf("failed to init sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("failed to close sink", zap.Error(err))
		}
	}()

	t := &taskRun{
		Task:    cfg,
		root:    source.Path,
		regex:   regex,
		sink:    sink,
		history: m.history.GetTaskHistory(cfg.Name),
		logger:  logger,
	}
	if cfg.SourceNewerDays > 0 {
		t.cutoff = m.now().AddDate(0, 0, -cfg.SourceNewerDays)
	}

	walkErr := m.processDirectory(ctx, t, source.String())
	if walkErr != nil {
		logger.Error("failed to process source directory", zap.Error(walkErr))
	}

	if cfg.RetentionDays > 0 {
		m.cleanup(t)
	}

	if err := m.history.Save(); err != nil {
		logger.Error("failed to save history", zap.Error(err))
		walkErr = multierror.Append(walkErr, err).ErrorOrNil()
	}
	logger.Info("finished task",
		zap.Int("transferred", t.result.Transferred),
		zap.Int("skipped", t.result.Skipped),
		zap.Int("failed", t.result.Failed),
		zap.Int("removed", t.result.Removed),
		zap.String("bytes", humanize.Bytes(uint64(t.result.Bytes))),
	)
	return t.result, walkErr
}

func (m *Mirror) createSink(task config.Task) (protocols.Sink, error) {
	switch task.TargetType {
	case config.TargetLocal:
		return &protocols.LocalSink{Root: task.TargetPath}, nil
	case config.TargetSFTP:
		if task.TargetAuth == nil {
			return nil, errors.New("auth required for sftp")
		}
		return &protocols.SFTPSink{
			Host:       task.TargetAuth.Host,
			Port:       task.TargetAuth.Port,
			User:       task.TargetAuth.User,
			Password:   task.TargetAuth.Password,
			KnownHosts: task.TargetAuth.KnownHosts,
			Root:       task.TargetPath,
			Logger:     m.logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown target type: %s", task.TargetType)
	}
}

// processDirectory handles the files of dir, then descends into its
// subdirectories. Only the listing of dir itself is reported as an error.
func (m *Mirror) processDirectory(ctx context.Context, t *taskRun, dir string) error {
	files, err := m.client.ListFiles(ctx, dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.processFile(ctx, t, f)
	}

	dirs, err := m.client.ListDirectories(ctx, dir)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.processDirectory(ctx, t, d.FullName()); err != nil {
			t.logger.Warn("failed to process subdirectory", zap.String("dir", d.FullName()), zap.Error(err))
		}
	}
	return nil
}

func (m *Mirror) processFile(ctx context.Context, t *taskRun, f *ftpfs.FileEntry) {
	if !t.regex.MatchString(f.Name()) {
		return
	}
	if !t.cutoff.IsZero() && f.LastWriteTime().Before(t.cutoff) {
		return
	}
	if t.history.Has(f.FullName()) {
		t.result.Skipped++
		return
	}

	rel := t.relative(f)
	n, err := m.transferFile(ctx, t, f, rel)
	if err != nil {
		t.result.Failed++
		t.logger.Warn("failed to transfer file", zap.String("uri", f.FullName()), zap.Error(err))
		return
	}
	t.result.Transferred++
	t.result.Bytes += n
	t.history.Add(f.FullName(), rel, m.now())
	t.logger.Info("transferred file",
		zap.String("uri", f.FullName()),
		zap.String("path", rel),
		zap.String("size", humanize.Bytes(uint64(n))),
	)
}

// relative returns the path of f below the task's source directory.
func (t *taskRun) relative(f *ftpfs.FileEntry) string {
	p := f.URI().Path
	if t.root != "/" {
		p = strings.TrimPrefix(p, t.root)
	}
	return strings.TrimPrefix(p, "/")
}

func (m *Mirror) transferFile(ctx context.Context, t *taskRun, f *ftpfs.FileEntry, rel string) (int64, error) {
	if dir := path.Dir(rel); dir != "." {
		if err := t.sink.MkdirAll(dir); err != nil {
			return 0, fmt.Errorf("failed to mkdir %s: %w", dir, err)
		}
	}

	src, err := m.client.OpenReadFile(ctx, f)
	if err != nil {
		return 0, err
	}
	dst, err := t.sink.Create(rel)
	if err != nil {
		src.Close()
		return 0, err
	}

	n, err := io.Copy(dst, src)
	// A failed RETR completion reply means the download was cut short.
	if cerr := src.Close(); err == nil {
		err = cerr
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := t.sink.Remove(rel); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			t.logger.Warn("failed to remove partial file", zap.String("path", rel), zap.Error(rerr))
		}
		return 0, err
	}

	if n != src.Length() {
		t.logger.Warn("transferred size differs from listed size",
			zap.String("uri", f.FullName()),
			zap.Int64("expected", src.Length()),
			zap.Int64("actual", n),
		)
	}
	return n, nil
}

// cleanup removes mirrored files whose transfer is older than the retention
// window. Records are kept so the files are not downloaded again.
func (m *Mirror) cleanup(t *taskRun) {
	cutoff := m.now().AddDate(0, 0, -t.RetentionDays)
	for uri, rec := range t.history.Snapshot() {
		if !rec.TransferredAt.Before(cutoff) {
			continue
		}
		if _, err := t.sink.Stat(rec.Path); err != nil {
			continue
		}
		t.logger.Info("removing expired file",
			zap.String("uri", uri),
			zap.String("path", rec.Path),
			zap.Time("transferred_at", rec.TransferredAt),
		)
		if err := t.sink.Remove(rec.Path); err != nil {
			t.logger.Warn("failed to remove expired file", zap.String("path", rec.Path), zap.Error(err))
			continue
		}
		t.result.Removed++
	}
}
