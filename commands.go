package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"flagftp/config"
	"flagftp/core"
	"flagftp/ftpfs"
)

var (
	errUsage   = errors.New("invalid arguments")
	errMissing = errors.New("not found")
)

const timeLayout = "2006-01-02 15:04"

type command struct {
	ctx    context.Context
	client *ftpfs.Client
	cfg    config.Config
	logger *zap.Logger
	stdout io.Writer
	stderr io.Writer

	rawBytes    bool
	once        bool
	configPath  string
	historyPath string
}

func (c *command) dispatch(name string, args []string) error {
	type handler struct {
		min, max int
		run      func([]string) error
	}
	handlers := map[string]handler{
		"ls":     {1, 1, c.ls},
		"dirs":   {1, 1, c.dirs},
		"files":  {1, 1, c.files},
		"names":  {1, 1, c.names},
		"stat":   {1, 1, c.stat},
		"get":    {1, 2, c.get},
		"put":    {2, 2, c.put},
		"rm":     {1, 1, c.rm},
		"mkdir":  {1, 1, c.mkdir},
		"rmdir":  {1, 1, c.rmdir},
		"exists": {1, 1, c.exists},
		"mirror": {0, 0, c.mirror},
	}
	h, ok := handlers[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if len(args) < h.min || len(args) > h.max {
		return fmt.Errorf("%w: wrong number of arguments for %s", errUsage, name)
	}
	return h.run(args)
}

func (c *command) size(n int64) string {
	if c.rawBytes {
		return fmt.Sprint(n)
	}
	return humanize.Bytes(uint64(n))
}

func (c *command) ls(args []string) error {
	dirs, err := c.client.ListDirectories(c.ctx, args[0])
	if err != nil {
		return err
	}
	files, err := c.client.ListFiles(c.ctx, args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	for _, d := range dirs {
		fmt.Fprintf(w, "d\t-\t-\t%s/\n", d.Name())
	}
	for _, f := range files {
		fmt.Fprintf(w, "-\t%s\t%s\t%s\n", c.size(f.Length()), f.LastWriteTime().Format(timeLayout), f.Name())
	}
	return w.Flush()
}

func (c *command) dirs(args []string) error {
	dirs, err := c.client.ListDirectories(c.ctx, args[0])
	if err != nil {
		return err
	}
	for _, d := range dirs {
		fmt.Fprintln(c.stdout, d.FullName())
	}
	return nil
}

func (c *command) files(args []string) error {
	files, err := c.client.ListFiles(c.ctx, args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.size(f.Length()), f.LastWriteTime().Format(timeLayout), f.FullName())
	}
	return w.Flush()
}

func (c *command) names(args []string) error {
	names, err := c.client.ListNames(c.ctx, args[0])
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(c.stdout, n)
	}
	return nil
}

func (c *command) stat(args []string) error {
	f, err := c.client.GetFileInfo(c.ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "uri:      %s\n", f.FullName())
	fmt.Fprintf(c.stdout, "size:     %s\n", c.size(f.Length()))
	fmt.Fprintf(c.stdout, "modified: %s (%s)\n", f.LastWriteTime().Format(time.RFC3339), humanize.Time(f.LastWriteTime()))
	return nil
}

func (c *command) get(args []string) (err error) {
	src, err := c.client.OpenRead(c.ctx, args[0])
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); err == nil {
			err = cerr
		}
	}()

	if len(args) == 1 || args[1] == "-" {
		_, err = io.Copy(c.stdout, src)
		return err
	}

	dst, err := os.Create(args[1])
	if err != nil {
		return err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n != src.Length() {
		c.logger.Warn("received size differs from reported size",
			zap.Int64("expected", src.Length()),
			zap.Int64("actual", n),
		)
	}
	fmt.Fprintf(c.stderr, "received %s into %s\n", c.size(n), args[1])
	return nil
}

func (c *command) put(args []string) error {
	src, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := c.client.OpenWrite(c.ctx, args[1])
	if err != nil {
		return err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stderr, "sent %s to %s\n", c.size(n), args[1])
	return nil
}

func (c *command) rm(args []string) error {
	return c.client.DeleteFile(c.ctx, args[0])
}

func (c *command) mkdir(args []string) error {
	return c.client.CreateDirectory(c.ctx, args[0])
}

func (c *command) rmdir(args []string) error {
	return c.client.DeleteDirectory(c.ctx, args[0])
}

// exists prints the kind of entry found at the URI, or reports errMissing.
func (c *command) exists(args []string) error {
	ok, err := c.client.FileExists(c.ctx, args[0])
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(c.stdout, ftpfs.KindFile)
		return nil
	}
	ok, err = c.client.DirectoryExists(c.ctx, args[0])
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(c.stdout, ftpfs.KindDirectory)
		return nil
	}
	fmt.Fprintln(c.stdout, "missing")
	return errMissing
}

func (c *command) mirror([]string) error {
	if c.configPath == "" {
		return fmt.Errorf("%w: mirror requires --config", errUsage)
	}
	if len(c.cfg.Tasks) == 0 {
		return errors.New("no tasks configured")
	}

	history := core.NewHistoryManager(c.historyPath)
	if err := history.Load(); err != nil {
		c.logger.Warn("failed to load history, starting empty", zap.Error(err))
	}
	runner := core.NewRunner(c.cfg.Tasks, core.NewMirror(c.client, history, c.logger), c.logger)

	if c.once {
		return runner.RunAll(c.ctx)
	}
	if err := runner.Start(); err != nil {
		return err
	}
	c.logger.Info("mirror running", zap.Int("tasks", len(c.cfg.Tasks)))
	<-c.ctx.Done()
	c.logger.Info("shutting down")
	runner.Stop()
	return nil
}
