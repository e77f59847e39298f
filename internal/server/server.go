// Package server is the HTTP front door: it decodes JSON-RPC envelopes, hands them to the
// relay and writes back whatever document the relay produced.
package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	stdlog "log"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/time/rate"

	"github.com/DragonSecurity/podrelay/internal/relay"
	v1 "github.com/DragonSecurity/podrelay/pkg/config/v1"
	"github.com/DragonSecurity/podrelay/pkg/transport"
	"github.com/DragonSecurity/podrelay/pkg/util"
	netutil "github.com/DragonSecurity/podrelay/pkg/util/net"
	"github.com/DragonSecurity/podrelay/pkg/util/xlog"
)

const (
	shutdownTimeout = 10 * time.Second
	stagingCA       = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

type Server struct {
	cfg         v1.ServerConfig
	relay       *relay.Relay
	sessions    *Sessions
	limiter     *rate.Limiter
	statsMethod string
	log         *util.Logger
	now         func() time.Time
}

type Option func(*Server)

// WithStatsMethod sets the method /api/stats relays. Defaults to relay.EnhancedPodsMethod.
func WithStatsMethod(m string) Option {
	return func(s *Server) {
		if m != "" {
			s.statsMethod = m
		}
	}
}

func New(cfg v1.ServerConfig, rl *relay.Relay, log *util.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg,
		relay:       rl,
		sessions:    NewSessions(),
		statsMethod: relay.EnhancedPodsMethod,
		log:         log,
		now:         time.Now,
	}
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests and closes websocket
// sessions.
func (s *Server) Run(ctx context.Context) error {
	h := s.routes()
	defer func() {
		if n := s.sessions.Len(); n > 0 {
			s.log.Infof("closing %d ws session(s)", n)
		}
		s.sessions.CloseAll()
	}()

	var tlsConf *tls.Config
	switch {
	case s.cfg.ACME.Enable && s.cfg.ACME.Challenge == "dns-01":
		conf, err := makeCertMagic(s.cfg.ACME)
		if err != nil {
			return err
		}
		s.log.Infof("ACME dns-01 via %s for %s", s.cfg.ACME.DNSProvider, s.cfg.ACME.Domain)
		tlsConf = conf
	case s.cfg.ACME.Enable:
		return s.runWithACME(ctx, h)
	case s.cfg.TLS.Enabled():
		conf, err := transport.NewServerTLSConfig(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile, s.cfg.TLS.ClientCAFile)
		if err != nil {
			return err
		}
		tlsConf = conf
	}

	ln, err := s.listen(s.cfg.Listen)
	if err != nil {
		return err
	}
	srv := s.httpServer(s.cfg.Listen, h)
	srv.TLSConfig = tlsConf
	return serveAndWait(ctx, srv, ln, s.log)
}

// listen opens the public listener, unwrapping PROXY protocol headers when enabled.
func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if s.cfg.ProxyProtocol {
		return netutil.NewProxyListener(ln, 0), nil
	}
	return ln, nil
}

func (s *Server) httpServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(xlog.NewWarnWriter(s.log), "", 0),
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID, s.accessLog, s.recoverer)
	if s.cfg.CORS {
		r.Use(cors)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/health", s.handleHealth)
	r.Get("/api/endpoints", s.handleEndpoints)
	r.Handle("/metrics", promhttp.Handler())

	// Everything that reaches a backend is rate limited.
	r.Group(func(rr chi.Router) {
		rr.Use(s.rateLimit, s.bodyLimit)
		rr.HandleFunc("/api/rpc", s.handleRPC)
		rr.HandleFunc("/rpc", s.handleRPC)
		rr.Get("/api/stats", s.handleStats)
		rr.Get("/api/ws", s.handleWS)
	})

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)
	return r
}

func (s *Server) runWithACME(ctx context.Context, h http.Handler) error {
	domain := s.cfg.ACME.Domain
	mgr := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domain),
		Email:      s.cfg.ACME.Email,
		Cache:      autocert.DirCache(s.cfg.ACME.Cache),
	}
	if strings.EqualFold(s.cfg.ACME.CA, "staging") {
		mgr.Client = &acme.Client{DirectoryURL: stagingCA}
	}

	// :80 answers challenges and redirects everything else to HTTPS.
	httpSrv := s.httpServer(":80", mgr.HTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		to := "https://" + hostOnly(r.Host) + r.URL.RequestURI()
		http.Redirect(w, r, to, http.StatusMovedPermanently)
	})))

	// Clients that send no SNI get a self-signed cert instead of a handshake error.
	fallbackCert, err := selfSignedCert(domain)
	if err != nil {
		s.log.Errorf("self-signed cert generation failed: %v", err)
	}
	getCert := func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		if hello == nil || hello.ServerName == "" {
			if fallbackCert != nil {
				return fallbackCert, nil
			}
			return nil, errors.New("missing SNI (ServerName)")
		}
		return mgr.GetCertificate(hello)
	}

	httpsSrv := s.httpServer(s.cfg.Listen, h)
	httpsSrv.TLSConfig = &tls.Config{
		GetCertificate: getCert,
		MinVersion:     tls.VersionTLS12,
		NextProtos:     []string{"h2", "http/1.1", acme.ALPNProto},
	}

	ln, err := s.listen(s.cfg.Listen)
	if err != nil {
		return err
	}
	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	go func() { errCh <- httpsSrv.ServeTLS(ln, "", "") }()

	s.log.Infof("ACME enabled: serving HTTP on :80 (redirect+challenges), HTTPS on %s; domain=%s", s.cfg.Listen, domain)

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpSrv.Shutdown(sctx)
		_ = httpsSrv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		_ = httpSrv.Close()
		_ = httpsSrv.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func serveAndWait(ctx context.Context, srv *http.Server, ln net.Listener, log *util.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if srv.TLSConfig != nil {
			log.Infof("listening on %s (tls)", ln.Addr())
			errCh <- srv.ServeTLS(ln, "", "")
			return
		}
		log.Infof("listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		log.Infof("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warnf("shutdown: %v", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}

// selfSignedCert creates a short-lived self-signed certificate for no-SNI handshakes.
func selfSignedCert(host string) (*tls.Certificate, error) {
	if host == "" {
		host = "localhost"
	}
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(now.UnixNano()),
		Subject:               pkix.Name{CommonName: host},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	if ip := net.ParseIP(host); ip != nil {
		tmpl.IPAddresses = []net.IP{ip}
	} else {
		tmpl.DNSNames = []string{host}
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}
