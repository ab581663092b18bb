package protocols

import (
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPSink stores mirrored files on an SFTP server below Root.
type SFTPSink struct {
	Host     string
	Port     int
	User     string
	Password string
	Root     string
	// KnownHosts is an OpenSSH known_hosts file used to verify the server.
	// Host keys are not checked when it is empty.
	KnownHosts string
	Timeout    time.Duration
	Logger     *zap.Logger

	client  *sftp.Client
	sshConn *ssh.Client
}

func (s *SFTPSink) Init() error {
	hostKey, err := s.hostKeyCallback()
	if err != nil {
		return err
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	config := &ssh.ClientConfig{
		User: s.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(s.Password),
		},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	port := s.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(port))
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start sftp session: %w", err)
	}
	s.sshConn = conn
	s.client = client
	return s.client.MkdirAll(s.rootDir())
}

func (s *SFTPSink) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.KnownHosts == "" {
		if s.Logger != nil {
			s.Logger.Warn("sftp host key verification disabled", zap.String("host", s.Host))
		}
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(s.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}
	return cb, nil
}

func (s *SFTPSink) Close() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	if s.sshConn != nil {
		errs = append(errs, s.sshConn.Close())
	}
	return combine(errs...)
}

func (s *SFTPSink) rootDir() string {
	if s.Root == "" {
		return "/"
	}
	return path.Clean(s.Root)
}

func (s *SFTPSink) full(rel string) string {
	return path.Join(s.rootDir(), cleanRel(rel))
}

func (s *SFTPSink) MkdirAll(rel string) error {
	return s.client.MkdirAll(s.full(rel))
}

func (s *SFTPSink) Create(rel string) (io.WriteCloser, error) {
	return s.client.Create(s.full(rel))
}

func (s *SFTPSink) Stat(rel string) (*SinkInfo, error) {
	info, err := s.client.Stat(s.full(rel))
	if err != nil {
		return nil, err
	}
	return &SinkInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
		Path:    strings.TrimPrefix(cleanRel(rel), "/"),
	}, nil
}

func (s *SFTPSink) Remove(rel string) error {
	return s.client.Remove(s.full(rel))
}

var _ Sink = (*SFTPSink)(nil)
