package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flagftp/config"
	"flagftp/ftpfs"
	"flagftp/protocols"
)

const usage = `usage: flagftp [flags] <command> [args]

commands:
  ls <dir>              list directories and files
  dirs <dir>            list directories
  files <dir>           list files with size and modification time
  names <dir>           list entry names as reported by NLST
  stat <file>           show the size and modification time of a file
  get <file> [local]    download a file (to stdout without a local path or with "-")
  put <local> <file>    upload a file
  rm <file>             delete a file
  mkdir <dir>           create a directory
  rmdir <dir>           delete an empty directory
  exists <uri>          report whether a file or directory exists (exit 1 if not)
  mirror                run the mirror tasks of --config until interrupted

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		newTransport: newFTPTransport,
		newLogger:    newLogger,
	}
	os.Exit(c.run(ctx, os.Args[1:]))
}

func newFTPTransport(cfg config.Transport, logger *zap.Logger) ftpfs.Transport {
	return protocols.NewFTPTransport(
		protocols.WithTimeout(cfg.Timeout()),
		protocols.WithDisabledEPSV(cfg.DisableEPSV),
		protocols.WithLogger(logger),
	)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

type cli struct {
	stdout       io.Writer
	stderr       io.Writer
	newTransport func(config.Transport, *zap.Logger) ftpfs.Transport
	newLogger    func(verbose bool) (*zap.Logger, error)
}

// run executes one command and returns the process exit code.
func (c *cli) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("flagftp", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprint(c.stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.StringP("config", "c", "", "path to a TOML config file")
	historyPath := fs.String("history", "history.json", "path to the mirror history file")
	user := fs.StringP("user", "u", "", "FTP user name, anonymous when empty")
	password := fs.StringP("password", "p", "", "FTP password (default $FLAGFTP_PASSWORD)")
	timeout := fs.Duration("timeout", 0, "connection timeout (default from config, else 30s)")
	disableEPSV := fs.Bool("disable-epsv", false, "use PASV for data connections")
	location := fs.String("location", "UTC", "time zone modification times are shown in")
	rawBytes := fs.Bool("bytes", false, "print sizes in bytes")
	once := fs.Bool("once", false, "mirror: run every task once and exit")
	verbose := fs.BoolP("verbose", "v", false, "log every FTP request")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logger, err := c.newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	cfg := config.Config{}.WithDefaults()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: failed to load config: %v\n", err)
			return 1
		}
		cfg = *loaded
	}
	if fs.Changed("timeout") {
		cfg.Transport.TimeoutSeconds = max(1, int(timeout.Round(time.Second).Seconds()))
	}
	if fs.Changed("disable-epsv") {
		cfg.Transport.DisableEPSV = *disableEPSV
	}

	creds := ftpfs.Credentials{Username: cfg.Credentials.User, Password: cfg.Credentials.Password}
	if fs.Changed("user") {
		creds.Username = *user
	}
	if fs.Changed("password") {
		creds.Password = *password
	} else if env := os.Getenv("FLAGFTP_PASSWORD"); env != "" {
		creds.Password = env
	}

	loc, err := time.LoadLocation(*location)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 2
	}
	client, err := ftpfs.NewClient(c.newTransport(cfg.Transport, logger), creds, ftpfs.WithLocation(loc))
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}

	cmd := &command{
		ctx:         ctx,
		client:      client,
		cfg:         cfg,
		logger:      logger,
		stdout:      c.stdout,
		stderr:      c.stderr,
		rawBytes:    *rawBytes,
		once:        *once,
		configPath:  *configPath,
		historyPath: *historyPath,
	}
	err = cmd.dispatch(fs.Arg(0), fs.Args()[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errMissing):
		return 1
	case errors.Is(err, errUsage):
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		fs.Usage()
		return 2
	default:
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
}
