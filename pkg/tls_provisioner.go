package pkg

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// TLSAcceptorKind distinguishes a statically-configured acceptor from one driven by
// an ACME state machine.
type TLSAcceptorKind int

const (
	TLSAcceptorManual TLSAcceptorKind = iota
	TLSAcceptorAutomatic
)

// TLSAcceptor wraps a *tls.Config together with the provisioning mode that produced
// it, so the listener can distinguish a manual cert (handshake synchronously) from an
// ACME one (may need to pass through acme-tls/1 challenge probes, §4.4).
type TLSAcceptor struct {
	Kind    TLSAcceptorKind
	Config  *tls.Config
	manager *autocert.Manager // non-nil only for Automatic
}

// IsChallengeProbe reports whether the connection's negotiated protocol is the ACME
// tls-alpn-01 challenge protocol, which the accept loop should "Pass" rather than
// dispatch to the HTTP handler.
func (a *TLSAcceptor) IsChallengeProbe(conn *tls.Conn) bool {
	if a.Kind != TLSAcceptorAutomatic {
		return false
	}
	return conn.ConnectionState().NegotiatedProtocol == acme.ALPNProto
}

const (
	envACMECacheDir      = "ITSI_ACME_CACHE_DIR"
	envACMECAPemPath     = "ITSI_ACME_CA_PEM_PATH"
	envACMEContactEmail  = "ITSI_ACME_CONTACT_EMAIL"
	envACMEDirectoryURL  = "ITSI_ACME_DIRECTORY_URL"
	envLocalCADir        = "ITSI_LOCAL_CA_DIR"
	localCACertBasename  = "itsi_dev_ca.crt"
	localCAKeyBasename   = "itsi_dev_ca.key"
	acmeCacheLockTimeout = 30 * time.Second
)

// BuildTLSAcceptor constructs a TlsAcceptor per §4.2: ACME when cert=acme, a static
// manual acceptor when cert+key are both given, otherwise a self-signed local CA.
func BuildTLSAcceptor(host string, options map[string]string) (*TLSAcceptor, error) {
	cert := options["cert"]

	switch {
	case cert == "acme":
		return buildACMEAcceptor(host, options)
	case cert != "" && options["key"] != "":
		return buildManualAcceptor(cert, options["key"])
	default:
		return buildSelfSignedAcceptor(host, options)
	}
}

func buildACMEAcceptor(host string, options map[string]string) (*TLSAcceptor, error) {
	domains := domainsFromOptions(host, options)
	if len(domains) == 0 {
		return nil, NewCoreError(KindInvalidInput, "ACME requires at least one domain")
	}

	email := options["acme_email"]
	if email == "" {
		email = os.Getenv(envACMEContactEmail)
	}
	if email == "" {
		return nil, NewCoreError(KindInvalidInput, "ACME requires acme_email")
	}

	cacheDir := os.Getenv(envACMECacheDir)
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "itsi-acme-cache")
	}
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("failed to create ACME cache dir: %v", err))
	}

	cache, err := newDirLockedCache(cacheDir, acmeCacheLockTimeout)
	if err != nil {
		return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("failed to acquire ACME cache lock: %v", err))
	}

	client := &acme.Client{}
	if directoryURL := os.Getenv(envACMEDirectoryURL); directoryURL != "" {
		client.DirectoryURL = directoryURL
	}
	if caPemPath := os.Getenv(envACMECAPemPath); caPemPath != "" {
		pool, err := loadCertPool(caPemPath)
		if err != nil {
			return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("failed to load ACME CA pool: %v", err))
		}
		client.HTTPClient = httpClientWithRootCAs(pool)
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      cache,
		HostPolicy: autocert.HostWhitelist(domains...),
		Email:      email,
		Client:     client,
	}

	cfg := manager.TLSConfig()
	cfg.NextProtos = append([]string{"h2", "http/1.1"}, cfg.NextProtos...)

	return &TLSAcceptor{Kind: TLSAcceptorAutomatic, Config: cfg, manager: manager}, nil
}

func domainsFromOptions(host string, options map[string]string) []string {
	if raw, ok := options["domains"]; ok && raw != "" {
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	if d, ok := options["domain"]; ok && d != "" {
		return []string{d}
	}
	if host != "" {
		return []string{host}
	}
	return nil
}

func buildManualAcceptor(certOpt, keyOpt string) (*TLSAcceptor, error) {
	certPEM, err := loadPossiblyBase64(certOpt)
	if err != nil {
		return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("invalid cert: %v", err))
	}
	keyPEM, err := loadPossiblyBase64(keyOpt)
	if err != nil {
		return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("invalid key: %v", err))
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("failed to build key pair: %v", err))
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}
	return &TLSAcceptor{Kind: TLSAcceptorManual, Config: cfg}, nil
}

// loadPossiblyBase64 loads a cert/key value that is either a filesystem path, a
// "base64:"-prefixed DER blob, or already inline PEM text.
func loadPossiblyBase64(value string) ([]byte, error) {
	if strings.HasPrefix(value, "base64:") {
		der, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "base64:"))
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
		// Re-encode as PEM so callers can uniformly feed tls.X509KeyPair.
		blockType := "CERTIFICATE"
		if _, err := x509.ParsePKCS8PrivateKey(der); err == nil {
			blockType = "PRIVATE KEY"
		}
		return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), nil
	}
	if strings.Contains(value, "-----BEGIN") {
		return []byte(value), nil
	}
	return os.ReadFile(value)
}

func loadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// buildSelfSignedAcceptor loads or creates a local development CA, then issues an
// end-entity certificate signed by it with SANs covering the requested domains.
func buildSelfSignedAcceptor(host string, options map[string]string) (*TLSAcceptor, error) {
	caDir := os.Getenv(envLocalCADir)
	if caDir == "" {
		caDir = filepath.Join(os.TempDir(), "itsi-local-ca")
	}
	if err := os.MkdirAll(caDir, 0o700); err != nil {
		return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("failed to create local CA dir: %v", err))
	}

	caCert, caKey, err := loadOrCreateLocalCA(caDir)
	if err != nil {
		return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("failed to load/create local CA: %v", err))
	}

	domains := domainsFromOptions(host, options)
	leafCert, leafKey, err := issueLeafCertificate(caCert, caKey, domains)
	if err != nil {
		return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("failed to issue leaf certificate: %v", err))
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{leafCert.Raw, caCert.Raw},
		PrivateKey:  leafKey,
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}
	return &TLSAcceptor{Kind: TLSAcceptorManual, Config: cfg}, nil
}

func loadOrCreateLocalCA(dir string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certPath := filepath.Join(dir, localCACertBasename)
	keyPath := filepath.Join(dir, localCAKeyBasename)

	if certBytes, err := os.ReadFile(certPath); err == nil {
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, nil, err
		}
		cert, key, err := decodeCertAndKey(certBytes, keyBytes)
		if err == nil {
			return cert, key, nil
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "itsi local dev CA", Organization: []string{"itsi"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

func decodeCertAndKey(certPEM, keyPEM []byte) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("invalid CA cert PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, err
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("invalid CA key PEM")
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

func issueLeafCertificate(caCert *x509.Certificate, caKey *ecdsa.PrivateKey, domains []string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}

	var dnsNames []string
	var ipAddrs []net.IP
	for _, d := range domains {
		if ip := net.ParseIP(d); ip != nil {
			ipAddrs = append(ipAddrs, ip)
		} else {
			dnsNames = append(dnsNames, d)
		}
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: firstOr(domains, "localhost"), Organization: []string{"itsi"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ipAddrs,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

func firstOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return items[0]
}
