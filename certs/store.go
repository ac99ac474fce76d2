// Package certs issues the certificate the bridge serves WSS and HTTPS
// with, from a local CA installed in the system trust store.
package certs

import (
	"bufio"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jittering/truststore"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("component", "tls")

// ErrNoCA is returned when the CA certificate has not been created yet.
var ErrNoCA = errors.New("CA certificate not found")

// Paths locates the files managed by a Store.
type Paths struct {
	CACert string
	Cert   string
	Key    string
	Hosts  string
}

// authority creates the CA and issues server certificates.
type authority interface {
	Install() error
	Issue(hosts []string, dir string) (certFile, keyFile string, err error)
}

type authorityFuncs struct {
	install func() error
	issue   func(hosts []string, dir string) (string, string, error)
}

func (a authorityFuncs) Install() error { return a.install() }

func (a authorityFuncs) Issue(hosts []string, dir string) (string, string, error) {
	return a.issue(hosts, dir)
}

// truststoreAuthority keeps the CA in caDir. Install may prompt for the
// user's password.
func truststoreAuthority(caDir string) (authority, error) {
	os.Setenv("CAROOT", caDir)

	lib, err := truststore.NewLib()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize truststore: %w", err)
	}
	return authorityFuncs{
		install: lib.Install,
		issue: func(hosts []string, dir string) (string, string, error) {
			cert, err := lib.MakeCert(hosts, dir)
			if err != nil {
				return "", "", err
			}
			return cert.CertFile, cert.KeyFile, nil
		},
	}, nil
}

// Store keeps the CA under <dir>/ca and the server certificate under
// <dir>/tls, reissuing the certificate when the host list changes.
type Store struct {
	caDir  string
	tlsDir string
	paths  Paths

	newAuthority func(caDir string) (authority, error)
}

// NewStore creates a store rooted at configDir. Nothing is written until
// Ensure is called.
func NewStore(configDir string) *Store {
	caDir := filepath.Join(configDir, "ca")
	tlsDir := filepath.Join(configDir, "tls")
	return &Store{
		caDir:  caDir,
		tlsDir: tlsDir,
		paths: Paths{
			CACert: filepath.Join(caDir, "rootCA.pem"),
			Cert:   filepath.Join(tlsDir, "server.crt"),
			Key:    filepath.Join(tlsDir, "server.key"),
			Hosts:  filepath.Join(tlsDir, "hosts.txt"),
		},
		newAuthority: truststoreAuthority,
	}
}

// Paths returns the managed file locations.
func (s *Store) Paths() Paths {
	return s.paths
}

// Ensure returns a certificate covering hosts, issuing a new one when none
// exists or the cached host list differs.
func (s *Store) Ensure(hosts []string) (Paths, error) {
	if err := os.MkdirAll(s.tlsDir, 0700); err != nil {
		return Paths{}, fmt.Errorf("failed to create TLS directory: %w", err)
	}

	entry := logger.WithField("hosts", hosts)
	switch {
	case !s.certsExist():
		entry.Info("Certificates not found, generating")
	case s.hostsChanged(hosts):
		entry.Info("Network configuration changed, regenerating certificates")
	default:
		entry.Debug("Using existing certificates")
		return s.paths, nil
	}

	if err := s.issue(hosts); err != nil {
		return Paths{}, err
	}
	return s.paths, nil
}

func (s *Store) issue(hosts []string) error {
	if err := os.MkdirAll(s.caDir, 0700); err != nil {
		return fmt.Errorf("failed to create CA directory: %w", err)
	}

	ca, err := s.newAuthority(s.caDir)
	if err != nil {
		return err
	}

	logger.Info("Ensuring CA is installed in the system trust store")
	if err := ca.Install(); err != nil {
		return fmt.Errorf("failed to install CA: %w", err)
	}

	certFile, keyFile, err := ca.Issue(hosts, s.tlsDir)
	if err != nil {
		return fmt.Errorf("failed to generate certificate: %w", err)
	}
	if err := moveFile(certFile, s.paths.Cert); err != nil {
		return fmt.Errorf("failed to rename cert file: %w", err)
	}
	if err := moveFile(keyFile, s.paths.Key); err != nil {
		return fmt.Errorf("failed to rename key file: %w", err)
	}

	if err := s.writeHosts(hosts); err != nil {
		logger.WithError(err).Warn("Failed to cache certificate hosts")
	}

	entry := logger.WithField("cert", s.paths.Cert)
	if fp, err := s.Fingerprint(); err == nil {
		entry = entry.WithField("ca_sha256", fp)
	}
	entry.Info("Certificate generated")
	return nil
}

func moveFile(from, to string) error {
	if from == to {
		return nil
	}
	return os.Rename(from, to)
}

func (s *Store) certsExist() bool {
	_, certErr := os.Stat(s.paths.Cert)
	_, keyErr := os.Stat(s.paths.Key)
	return certErr == nil && keyErr == nil
}

// hostsChanged compares hosts with the cached list, ignoring order.
func (s *Store) hostsChanged(hosts []string) bool {
	cached, err := s.readHosts()
	if err != nil {
		return true
	}
	a, b := slices.Clone(cached), slices.Clone(hosts)
	slices.Sort(a)
	slices.Sort(b)
	return !slices.Equal(a, b)
}

func (s *Store) readHosts() ([]string, error) {
	file, err := os.Open(s.paths.Hosts)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var hosts []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if host := strings.TrimSpace(scanner.Text()); host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts, scanner.Err()
}

func (s *Store) writeHosts(hosts []string) error {
	return os.WriteFile(s.paths.Hosts, []byte(strings.Join(hosts, "\n")+"\n"), 0600)
}

// CACert returns the CA certificate PEM.
func (s *Store) CACert() ([]byte, error) {
	data, err := os.ReadFile(s.paths.CACert)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCA
	}
	return data, err
}

// Fingerprint returns the SHA-256 fingerprint of the CA certificate as
// colon-separated uppercase hex.
func (s *Store) Fingerprint() (string, error) {
	data, err := s.CACert()
	if err != nil {
		return "", err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}

// CACertHandler serves the CA certificate so clients on other machines can
// trust the bridge.
func (s *Store) CACertHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := s.CACert()
		if err != nil {
			http.Error(w, ErrNoCA.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-pem-file")
		w.Header().Set("Content-Disposition", `attachment; filename="nfc-reader-bridge-ca.pem"`)
		w.Write(data)
		logger.WithField("remote", r.RemoteAddr).Info("CA certificate downloaded")
	})
}
