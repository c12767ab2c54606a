package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/acme/autocert"

	"github.com/markb/plexgate/internal/log"
)

// ValidateDomain checks that a domain can get a Let's Encrypt certificate.
// Localhost, IP addresses, and malformed names are rejected up front so the
// server fails fast instead of burning ACME rate limits.
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain required for HTTPS")
	}

	lower := strings.ToLower(domain)
	if lower == "localhost" {
		return fmt.Errorf("Let's Encrypt requires a public domain, not localhost")
	}
	if ip := net.ParseIP(domain); ip != nil {
		return fmt.Errorf("Let's Encrypt requires a domain name, not an IP address")
	}
	if strings.HasPrefix(domain, "[") && strings.HasSuffix(domain, "]") {
		return fmt.Errorf("Let's Encrypt requires a domain name, not an IP address")
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") ||
		strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-") ||
		strings.Contains(domain, "..") {
		return fmt.Errorf("invalid domain format: %s", domain)
	}
	return nil
}

// newAutocertManager configures certificate issuance for a single domain,
// caching certificates in certDir.
func newAutocertManager(domain, certDir string) *autocert.Manager {
	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domain),
		Cache:      autocert.DirCache(certDir),
	}
}

// newTLSConfig builds the TLS config over the autocert manager, with HTTP/2.
func newTLSConfig(manager *autocert.Manager) *tls.Config {
	return &tls.Config{
		GetCertificate: manager.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
	}
}

// HTTPRedirectHandler redirects plain-HTTP requests to the HTTPS origin.
// ACME challenges are handled separately by autocert.Manager.HTTPHandler.
func HTTPRedirectHandler(domain string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := "https://" + domain + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// ListenAndServeTLS serves HTTPS on :443 with automatic certificates for
// cfg.TLSDomain, plus an HTTP listener on cfg.HTTPAddr for ACME challenges
// and redirects. Blocks until the HTTPS server stops.
func (s *Server) ListenAndServeTLS() error {
	if err := ValidateDomain(s.cfg.TLSDomain); err != nil {
		return err
	}

	certDir := s.cfg.CertDir
	if certDir == "" {
		certDir = "./certs"
	}
	s.autocertMgr = newAutocertManager(s.cfg.TLSDomain, certDir)

	httpAddr := s.cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":80"
	}
	s.httpRedirect = &http.Server{
		Addr:    httpAddr,
		Handler: s.autocertMgr.HTTPHandler(HTTPRedirectHandler(s.cfg.TLSDomain)),
	}
	go func() {
		if err := s.httpRedirect.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http redirect server failed", "error", err.Error())
		}
	}()

	s.httpsServer = &http.Server{
		Addr:      ":443",
		Handler:   s.router,
		TLSConfig: newTLSConfig(s.autocertMgr),
	}
	log.Info("listening with TLS", "domain", s.cfg.TLSDomain, "cert_dir", certDir)
	return s.httpsServer.ListenAndServeTLS("", "")
}
