package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// newCertManager returns a Let's Encrypt manager for domain. Only the domain
// itself and its subdomains are allowed.
func newCertManager(domain, email, cacheDir string) *autocert.Manager {
	hostPolicy := func(ctx context.Context, host string) error {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return nil
		}
		return fmt.Errorf("host %q not allowed", host)
	}

	return &autocert.Manager{
		Cache:      autocert.DirCache(cacheDir),
		Prompt:     autocert.AcceptTOS,
		Email:      email,
		HostPolicy: hostPolicy,
	}
}

// listenHTTPS serves the capture router over TLS and answers ACME
// challenges on the plain port.
func (s *Server) listenHTTPS(ctx context.Context) error {
	cacheDir := s.config.CertDir
	if cacheDir == "" {
		cacheDir = filepath.Join(s.config.DataDir, "certs")
	}
	m := newCertManager(s.config.Domain, s.config.TLSEmail, cacheDir)

	port := s.config.TLSPort
	if port == 0 {
		port = 443
	}
	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("capture server listening with TLS", "addr", addr, "domain", s.config.Domain)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		TLSConfig:         m.TLSConfig(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	// Plain HTTP handles ACME challenges and still accepts webhooks
	go func() {
		if err := s.listenHTTP(ctx, m.HTTPHandler(s.Handler())); err != nil {
			s.logger.Error("http listener failed", "error", err)
		}
	}()

	if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("capture server (tls): %w", err)
	}
	return nil
}
