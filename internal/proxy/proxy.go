package proxy

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	gliderssh "github.com/gliderlabs/ssh"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"reposync.dev/reposync/internal/buildlog"
	reposyncerrors "reposync.dev/reposync/internal/errors"
	"reposync.dev/reposync/internal/metrics"
)

const (
	// DefaultSSHPort is used when the upstream URL carries no port
	DefaultSSHPort = 22
	dialTimeout    = 30 * time.Second
)

// ConnectionData describes the upstream end of a tunnel
type ConnectionData struct {
	Host string
	Port int
	User string

	Password   string
	PrivateKey []byte
	Passphrase string

	// LocalPath is the repository path git asks the proxy for and RemotePath
	// the path sent upstream in its place. Both empty means no rewrite.
	LocalPath  string
	RemotePath string
}

// Options configures a Service
type Options struct {
	// Address to listen on, defaults to 127.0.0.1:0
	Address string
	Logger  buildlog.Logger
	Metrics *metrics.Metrics
}

// Service is the local SSH endpoint shared by all registrations
type Service struct {
	opts Options

	mu       sync.Mutex
	server   *gliderssh.Server
	listener net.Listener
	sessions map[string]*Registration
}

// NewService creates a Service. The listener is opened on first Register.
func NewService(opts Options) *Service {
	if opts.Address == "" {
		opts.Address = "127.0.0.1:0"
	}
	if opts.Logger == nil {
		opts.Logger = buildlog.Discard
	}
	return &Service{opts: opts, sessions: map[string]*Registration{}}
}

func (s *Service) startLocked() error {
	if s.server != nil {
		return nil
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		return fmt.Errorf("failed to create host key signer: %w", err)
	}

	listener, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}

	server := &gliderssh.Server{Handler: s.handle}
	server.AddHostKey(signer)

	s.server = server
	s.listener = listener
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, gliderssh.ErrServerClosed) {
			s.opts.Logger.Warn("SSH proxy stopped: %v", err)
		}
	}()
	return nil
}

// Register opens a tunnel for data. The returned Registration must be closed.
func (s *Service) Register(data ConnectionData) (*Registration, error) {
	if data.Host == "" {
		return nil, reposyncerrors.NewTransportError("", "cannot register ssh proxy without upstream host", nil)
	}
	if data.Port == 0 {
		data.Port = DefaultSSHPort
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startLocked(); err != nil {
		return nil, reposyncerrors.NewTransportError(data.Host, "failed to start ssh proxy", err)
	}

	addr := s.listener.Addr().(*net.TCPAddr)
	reg := &Registration{
		service: s,
		user:    "proxy-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		host:    addr.IP.String(),
		port:    addr.Port,
		data:    data,
	}
	s.sessions[reg.user] = reg
	s.opts.Metrics.ProxyOpened()
	s.opts.Logger.Debug("Registered ssh proxy for %s@%s:%d", data.User, data.Host, data.Port)
	return reg, nil
}

func (s *Service) lookup(user string) *Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[user]
}

func (s *Service) unregister(reg *Registration) {
	s.mu.Lock()
	delete(s.sessions, reg.user)
	s.mu.Unlock()
	s.opts.Metrics.ProxyClosed(reg.Err())
}

// Close stops the endpoint. Outstanding registrations stop working.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Close()
	s.server = nil
	s.listener = nil
	return err
}

// Registration is a scoped tunnel handle
type Registration struct {
	service *Service
	user    string
	host    string
	port    int
	data    ConnectionData

	mu     sync.Mutex
	err    error
	closed bool
}

// User is the user name git must connect with
func (r *Registration) User() string { return r.user }

// Host is the local endpoint host
func (r *Registration) Host() string { return r.host }

// Port is the local endpoint port
func (r *Registration) Port() int { return r.port }

// Err returns the first tunnel failure, if any
func (r *Registration) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Registration) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Close releases the registration. Calling it more than once is a no-op.
func (r *Registration) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.service.unregister(r)
	return nil
}

// mapCommand rewrites the quoted repository path of a git command
func (r *Registration) mapCommand(command string) string {
	if r.data.LocalPath == "" || r.data.LocalPath == r.data.RemotePath {
		return command
	}
	for _, quote := range []string{"'", "\""} {
		local := quote + r.data.LocalPath + quote
		if strings.Contains(command, local) {
			return strings.Replace(command, local, quote+r.data.RemotePath+quote, 1)
		}
	}
	fields := strings.Fields(command)
	if len(fields) == 2 && fields[1] == r.data.LocalPath {
		return fields[0] + " '" + r.data.RemotePath + "'"
	}
	return command
}

func (r *Registration) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if len(r.data.PrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if r.data.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(r.data.PrivateKey, []byte(r.data.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(r.data.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if r.data.Password != "" {
		password := r.data.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	return &ssh.ClientConfig{
		User:            r.data.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host keys are not verified, matching the wrapper script
		Timeout:         dialTimeout,
	}, nil
}

func (s *Service) handle(session gliderssh.Session) {
	reg := s.lookup(session.User())
	if reg == nil {
		_, _ = fmt.Fprintf(session.Stderr(), "unknown proxy user %s\n", session.User())
		_ = session.Exit(255)
		return
	}
	_ = session.Exit(reg.forward(session))
}

// forward runs the session command upstream and returns its exit status
func (r *Registration) forward(session gliderssh.Session) int {
	failed := func(err error) int {
		r.fail(err)
		_, _ = fmt.Fprintf(session.Stderr(), "ssh proxy: %v\n", err)
		return 255
	}

	config, err := r.clientConfig()
	if err != nil {
		return failed(err)
	}
	address := net.JoinHostPort(r.data.Host, strconv.Itoa(r.data.Port))
	client, err := ssh.Dial("tcp", address, config)
	if err != nil {
		return failed(fmt.Errorf("failed to connect to %s: %w", address, err))
	}
	defer func() { _ = client.Close() }()

	upstream, err := client.NewSession()
	if err != nil {
		return failed(fmt.Errorf("failed to open session on %s: %w", address, err))
	}
	defer func() { _ = upstream.Close() }()

	stdin, err := upstream.StdinPipe()
	if err != nil {
		return failed(err)
	}
	stdout, err := upstream.StdoutPipe()
	if err != nil {
		return failed(err)
	}
	stderr, err := upstream.StderrPipe()
	if err != nil {
		return failed(err)
	}

	command := r.mapCommand(session.RawCommand())
	if err := upstream.Start(command); err != nil {
		return failed(fmt.Errorf("failed to start %q on %s: %w", command, address, err))
	}

	// stdin ends when the client closes it or the session goes away
	go func() {
		_, _ = io.Copy(stdin, session)
		_ = stdin.Close()
	}()

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(session, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(session.Stderr(), stderr)
		return err
	})
	copyErr := g.Wait()
	waitErr := upstream.Wait()

	if copyErr != nil {
		return failed(fmt.Errorf("failed to relay output from %s: %w", address, copyErr))
	}
	var exitErr *ssh.ExitError
	switch {
	case waitErr == nil:
		return 0
	case errors.As(waitErr, &exitErr):
		return exitErr.ExitStatus()
	default:
		return failed(fmt.Errorf("session on %s ended: %w", address, waitErr))
	}
}
