package dns

import (
	"fmt"
	"net"
	"sync"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

const (
	// DefaultListenAddr is the address the DNS server binds by default
	DefaultListenAddr = "127.0.0.1:8053"

	// DefaultDomain is the domain published services live under
	DefaultDomain = "rolekeeper"
)

// Server serves the registry over UDP
type Server struct {
	resolver   *Resolver
	dnsServer  *dns.Server
	conn       net.PacketConn
	listenAddr string
	upstream   []string // forwarders for names outside the domain
	logger     zerolog.Logger
	mu         sync.RWMutex
	running    bool
}

// Config holds DNS server configuration
type Config struct {
	ListenAddr string   // default 127.0.0.1:8053
	Upstream   []string // empty means names outside the domain are refused
}

// NewServer creates a server answering from registry
func NewServer(registry *Registry, config Config, logger zerolog.Logger) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultListenAddr
	}
	return &Server{
		resolver:   NewResolver(registry, logger),
		listenAddr: config.ListenAddr,
		upstream:   config.Upstream,
		logger:     logger.With().Str("component", "dns").Logger(),
	}
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("DNS server already running")
	}

	conn, err := net.ListenPacket("udp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handleDNSQuery)
	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        conn,
		Handler:           mux,
		NotifyStartedFunc: func() { close(started) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ActivateAndServe()
	}()
	select {
	case <-started:
	case err := <-errCh:
		conn.Close()
		return fmt.Errorf("failed to serve DNS: %w", err)
	}

	s.conn = conn
	s.dnsServer = srv
	s.running = true

	s.logger.Info().Str("address", conn.LocalAddr().String()).Msg("DNS server started")
	return nil
}

// Addr returns the bound address, or nil when stopped
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop shuts the server down
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	err := s.dnsServer.Shutdown()
	s.conn = nil
	if err != nil {
		s.logger.Error().Err(err).Msg("Error stopping DNS server")
		return err
	}
	s.logger.Info().Msg("DNS server stopped")
	return nil
}

func (s *Server) handleDNSQuery(w dns.ResponseWriter, r *dns.Msg) {
	msg := &dns.Msg{}
	msg.SetReply(r)
	msg.Authoritative = true

	for _, q := range r.Question {
		if !s.resolver.InDomain(q.Name) {
			s.forwardQuery(w, r)
			return
		}
		if q.Qtype != dns.TypeA {
			continue
		}
		answers, err := s.resolver.Resolve(q.Name)
		if err != nil {
			s.logger.Debug().Err(err).Str("query", q.Name).Msg("Name not resolved")
			msg.Rcode = dns.RcodeNameError
			continue
		}
		msg.Answer = append(msg.Answer, answers...)
	}
	if len(msg.Answer) > 0 {
		msg.Rcode = dns.RcodeSuccess
	}

	if err := w.WriteMsg(msg); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write DNS response")
	}
}

func (s *Server) forwardQuery(w dns.ResponseWriter, r *dns.Msg) {
	client := &dns.Client{Net: "udp"}
	for _, upstream := range s.upstream {
		resp, _, err := client.Exchange(r, upstream)
		if err != nil {
			s.logger.Debug().Err(err).Str("upstream", upstream).Msg("Failed to forward query")
			continue
		}
		if err := w.WriteMsg(resp); err != nil {
			s.logger.Error().Err(err).Msg("Failed to write forwarded DNS response")
		}
		return
	}

	msg := &dns.Msg{}
	msg.SetReply(r)
	msg.Rcode = dns.RcodeRefused
	if len(s.upstream) > 0 {
		msg.Rcode = dns.RcodeServerFailure
	}
	if err := w.WriteMsg(msg); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write DNS error response")
	}
}

// IsRunning returns true if the DNS server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
