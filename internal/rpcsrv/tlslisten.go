// Optional TLS front for the JSON-RPC TCP transport, for operators who
// expose the control port beyond localhost (spec's TLS note, §9
// expansion). Trimmed and generalized from the teacher's AutoSSLManager
// (internal/server/autossl.go): the Cloudflare DNS-01 automation is
// dropped (there is no DNS-provider config surface in an audio pipeline)
// but the manual DNS-01 flow, account-key handling, and certificate
// cache/renewal loop are kept, repointed at the RPC listener instead of
// the HTTP/HTTPS mount server.
package rpcsrv

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/acme"
)

// ACMEConfig parameterizes an ACMEManager.
type ACMEConfig struct {
	Hostname string
	Email    string
	CacheDir string
}

// ACMEManager obtains and renews a certificate for one hostname via
// Let's Encrypt's DNS-01 challenge, serving it to a *tls.Config through
// GetCertificate.
type ACMEManager struct {
	cfg    ACMEConfig
	logger *slog.Logger

	client  *acme.Client
	account *acme.Account

	mu           sync.RWMutex
	cert         *tls.Certificate
	pendingFQDN  string
	pendingValue string
}

// NewACMEManager builds a manager and loads any cached certificate.
func NewACMEManager(cfg ACMEConfig, logger *slog.Logger) (*ACMEManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.CacheDir, 0700); err != nil {
		return nil, fmt.Errorf("rpcsrv: create cache dir: %w", err)
	}
	m := &ACMEManager{cfg: cfg, logger: logger}
	if err := m.loadCachedCertificate(); err != nil {
		logger.Debug("rpcsrv: no cached certificate", "err", err)
	}
	return m, nil
}

// TLSConfig returns a *tls.Config serving the currently loaded
// certificate, suitable for net.Listener wrapping via tls.NewListener.
func (m *ACMEManager) TLSConfig() *tls.Config {
	return &tls.Config{GetCertificate: m.GetCertificate, MinVersion: tls.VersionTLS12}
}

// GetCertificate implements tls.Config.GetCertificate.
func (m *ACMEManager) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cert == nil {
		return nil, fmt.Errorf("rpcsrv: no certificate loaded for %s", m.cfg.Hostname)
	}
	return m.cert, nil
}

// Listen wraps ln with TLS using the manager's certificate.
func (m *ACMEManager) Listen(ln net.Listener) net.Listener {
	return tls.NewListener(ln, m.TLSConfig())
}

func (m *ACMEManager) loadCachedCertificate() error {
	certPath := filepath.Join(m.cfg.CacheDir, m.cfg.Hostname+".crt")
	keyPath := filepath.Join(m.cfg.CacheDir, m.cfg.Hostname+".key")

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return err
	}
	if len(cert.Certificate) > 0 {
		x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
		if err == nil && time.Now().After(x509Cert.NotAfter) {
			return fmt.Errorf("cached certificate for %s has expired", m.cfg.Hostname)
		}
	}
	m.mu.Lock()
	m.cert = &cert
	m.mu.Unlock()
	return nil
}

// PrepareDNSChallenge starts a fresh ACME order and returns the TXT
// record name/value the operator must publish before ObtainCertificate
// can succeed.
func (m *ACMEManager) PrepareDNSChallenge(ctx context.Context) (fqdn, value string, err error) {
	if err := m.initClient(ctx); err != nil {
		return "", "", err
	}

	order, err := m.client.AuthorizeOrder(ctx, acme.DomainIDs(m.cfg.Hostname))
	if err != nil {
		return "", "", fmt.Errorf("rpcsrv: authorize order: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.cfg.CacheDir, "pending_order"), []byte(order.URI), 0600); err != nil {
		return "", "", err
	}

	for _, authzURL := range order.AuthzURLs {
		authz, err := m.client.GetAuthorization(ctx, authzURL)
		if err != nil {
			continue
		}
		for _, ch := range authz.Challenges {
			if ch.Type != "dns-01" {
				continue
			}
			txtValue, err := m.client.DNS01ChallengeRecord(ch.Token)
			if err != nil {
				return "", "", fmt.Errorf("rpcsrv: dns-01 record: %w", err)
			}
			fqdn := "_acme-challenge." + m.cfg.Hostname
			data := fmt.Sprintf("%s\n%s\n%s", ch.URI, fqdn, txtValue)
			if err := os.WriteFile(filepath.Join(m.cfg.CacheDir, "pending_challenge"), []byte(data), 0600); err != nil {
				return "", "", err
			}
			m.mu.Lock()
			m.pendingFQDN, m.pendingValue = fqdn, txtValue
			m.mu.Unlock()
			return fqdn, txtValue, nil
		}
	}
	return "", "", fmt.Errorf("rpcsrv: no dns-01 challenge offered for %s", m.cfg.Hostname)
}

// VerifyDNSRecord checks that the TXT record from PrepareDNSChallenge has
// propagated.
func (m *ACMEManager) VerifyDNSRecord() error {
	m.mu.RLock()
	fqdn, want := m.pendingFQDN, m.pendingValue
	m.mu.RUnlock()
	if fqdn == "" {
		return fmt.Errorf("rpcsrv: no pending DNS challenge")
	}
	records, err := net.LookupTXT(fqdn)
	if err != nil {
		return fmt.Errorf("rpcsrv: lookup %s: %w", fqdn, err)
	}
	for _, r := range records {
		if r == want {
			return nil
		}
	}
	return fmt.Errorf("rpcsrv: TXT record for %s not yet matching", fqdn)
}

// ObtainCertificate finalizes the pending order into a certificate,
// saves it to the cache dir, and loads it for serving.
func (m *ACMEManager) ObtainCertificate(ctx context.Context) error {
	challengeData, err := os.ReadFile(filepath.Join(m.cfg.CacheDir, "pending_challenge"))
	if err != nil {
		return fmt.Errorf("rpcsrv: read pending challenge: %w", err)
	}
	parts := strings.SplitN(string(challengeData), "\n", 3)
	if len(parts) != 3 {
		return fmt.Errorf("rpcsrv: invalid pending challenge data")
	}
	challengeURI := parts[0]

	orderData, err := os.ReadFile(filepath.Join(m.cfg.CacheDir, "pending_order"))
	if err != nil {
		return fmt.Errorf("rpcsrv: read pending order: %w", err)
	}

	if err := m.initClient(ctx); err != nil {
		return err
	}

	challenge, err := m.client.Accept(ctx, &acme.Challenge{URI: challengeURI})
	if err != nil {
		return fmt.Errorf("rpcsrv: accept challenge: %w", err)
	}
	if _, err := m.client.WaitAuthorization(ctx, challenge.URI); err != nil {
		return fmt.Errorf("rpcsrv: wait authorization: %w", err)
	}
	order, err := m.client.WaitOrder(ctx, string(orderData))
	if err != nil {
		return fmt.Errorf("rpcsrv: wait order: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("rpcsrv: generate key: %w", err)
	}
	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{DNSNames: []string{m.cfg.Hostname}}, key)
	if err != nil {
		return fmt.Errorf("rpcsrv: create csr: %w", err)
	}
	derChain, _, err := m.client.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return fmt.Errorf("rpcsrv: finalize order: %w", err)
	}
	if err := m.saveCertificate(key, derChain); err != nil {
		return err
	}

	os.Remove(filepath.Join(m.cfg.CacheDir, "pending_challenge"))
	os.Remove(filepath.Join(m.cfg.CacheDir, "pending_order"))
	m.mu.Lock()
	m.pendingFQDN, m.pendingValue = "", ""
	m.mu.Unlock()

	return m.loadCachedCertificate()
}

// RenewalLoop checks the certificate's expiry on an interval and
// re-obtains it (assuming the DNS TXT record is kept in place by the
// operator) when fewer than 30 days remain.
func (m *ACMEManager) RenewalLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			cert := m.cert
			m.mu.RUnlock()
			if cert == nil || len(cert.Certificate) == 0 {
				continue
			}
			x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
			if err != nil || time.Until(x509Cert.NotAfter) > 30*24*time.Hour {
				continue
			}
			m.logger.Info("rpcsrv: certificate nearing expiry, renewing", "hostname", m.cfg.Hostname)
			if _, _, err := m.PrepareDNSChallenge(ctx); err != nil {
				m.logger.Error("rpcsrv: renewal prepare failed", "err", err)
				continue
			}
			if err := m.VerifyDNSRecord(); err != nil {
				m.logger.Warn("rpcsrv: renewal waiting on DNS", "err", err)
				continue
			}
			if err := m.ObtainCertificate(ctx); err != nil {
				m.logger.Error("rpcsrv: renewal obtain failed", "err", err)
			}
		}
	}
}

func (m *ACMEManager) initClient(ctx context.Context) error {
	if m.client != nil {
		return nil
	}
	key, err := loadOrCreateKey(filepath.Join(m.cfg.CacheDir, "account.key"))
	if err != nil {
		return fmt.Errorf("rpcsrv: account key: %w", err)
	}
	m.client = &acme.Client{Key: key, DirectoryURL: "https://acme-v02.api.letsencrypt.org/directory"}
	m.account, err = m.client.Register(ctx, &acme.Account{Contact: []string{"mailto:" + m.cfg.Email}}, acme.AcceptTOS)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		m.account, err = m.client.GetReg(ctx, "")
		if err != nil {
			return fmt.Errorf("rpcsrv: register/get account: %w", err)
		}
	}
	return nil
}

func loadOrCreateKey(path string) (crypto.Signer, error) {
	if data, err := os.ReadFile(path); err == nil {
		if block, _ := pem.Decode(data); block != nil && block.Type == "EC PRIVATE KEY" {
			return x509.ParseECPrivateKey(block.Bytes)
		}
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

func (m *ACMEManager) saveCertificate(key crypto.Signer, derChain [][]byte) error {
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	keyPath := filepath.Join(m.cfg.CacheDir, m.cfg.Hostname+".key")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}), 0600); err != nil {
		return err
	}

	var certPEM []byte
	for _, der := range derChain {
		certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}
	certPath := filepath.Join(m.cfg.CacheDir, m.cfg.Hostname+".crt")
	return os.WriteFile(certPath, certPEM, 0600)
}
