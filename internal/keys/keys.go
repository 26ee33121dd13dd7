// Package keys generates RSA key pairs on the appliance itself and installs
// the private half into the appliance key store.
//
// It must run on the appliance: every operation shells out to tmsh.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/muurk/appliancectl/internal/logging"
)

// DefaultKeyBits is the RSA modulus size of generated keys.
const DefaultKeyBits = 2048

const filestoreRoot = "/config/filestore/files_d"

// PublicKeyFormat selects how the public key is written.
type PublicKeyFormat string

const (
	// FormatPEM writes a PKIX "PUBLIC KEY" PEM block.
	FormatPEM PublicKeyFormat = "pem"
	// FormatSSH writes an OpenSSH authorized_keys line.
	FormatSSH PublicKeyFormat = "ssh"
)

// Metadata is what the key store records about an installed private key.
type Metadata struct {
	Passphrase string
}

var passphrasePattern = regexp.MustCompile(`passphrase\s+(\S+)`)

// Manager installs and inspects private keys through the appliance shell.
type Manager struct {
	Shell   Shell
	TempDir string
	Bits    int
	Format  PublicKeyFormat

	logger *zap.Logger
}

// NewManager creates a Manager on shell. A nil shell runs commands locally.
func NewManager(shell Shell) *Manager {
	if shell == nil {
		shell = ExecShell{}
	}
	return &Manager{
		Shell:   shell,
		TempDir: os.TempDir(),
		Bits:    DefaultKeyBits,
		Format:  FormatPEM,
		logger:  logging.Named("keys"),
	}
}

// SetLogger replaces the logger
func (m *Manager) SetLogger(l *zap.Logger) {
	if l != nil {
		m.logger = l
	}
}

func (m *Manager) tmsh(ctx context.Context, args ...string) (string, error) {
	return m.Shell.Run(ctx, TMSHPath, args...)
}

func keyObject(folder, name string) string {
	return "/" + folder + "/" + name + ".key"
}

// KeyExists reports whether the key store already holds folder/name.
func (m *Manager) KeyExists(ctx context.Context, folder, name string) bool {
	out, err := m.tmsh(ctx, "list", "sys", "file", "ssl-key", keyObject(folder, name))
	return err == nil && strings.TrimSpace(out) != ""
}

// GenerateAndInstallKeyPair writes a new public key to publicKeyOutFile in
// publicKeyDir and installs the private key as folder/name.key. Nothing is
// done when that key is already installed.
func (m *Manager) GenerateAndInstallKeyPair(ctx context.Context, publicKeyDir, publicKeyOutFile, folder, name string) error {
	if folder == "" || name == "" {
		return errors.New("private key folder and name are required")
	}
	if m.KeyExists(ctx, folder, name) {
		m.logger.Debug("Private key already installed", zap.String("key", keyObject(folder, name)))
		return nil
	}

	if err := ensureDir(publicKeyDir); err != nil {
		return err
	}

	key, err := rsa.GenerateKey(rand.Reader, m.bits())
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	pub, err := m.encodePublicKey(&key.PublicKey)
	if err != nil {
		return err
	}
	outPath := publicKeyOutFile
	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(publicKeyDir, outPath)
	}
	if err := os.WriteFile(outPath, pub, 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	if err := m.ensureFolder(ctx, folder); err != nil {
		return err
	}

	if err := m.installPrivateKey(ctx, key, folder, name); err != nil {
		return err
	}

	m.logger.Info("Key pair installed",
		zap.String("public_key", outPath),
		zap.String("private_key", keyObject(folder, name)),
	)
	return nil
}

func (m *Manager) bits() int {
	if m.Bits > 0 {
		return m.Bits
	}
	return DefaultKeyBits
}

func (m *Manager) encodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	switch m.Format {
	case FormatSSH:
		sshPub, err := ssh.NewPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("failed to encode public key: %w", err)
		}
		return ssh.MarshalAuthorizedKey(sshPub), nil
	case FormatPEM, "":
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("failed to encode public key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
	default:
		return nil, fmt.Errorf("unknown public key format %q", m.Format)
	}
}

func ensureDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create public key directory: %w", err)
	}
	return nil
}

func (m *Manager) ensureFolder(ctx context.Context, folder string) error {
	if _, err := m.tmsh(ctx, "list", "sys", "folder", "/"+folder); err == nil {
		return nil
	}
	if _, err := m.tmsh(ctx, "create", "sys", "folder", "/"+folder); err != nil {
		return fmt.Errorf("failed to create folder /%s: %w", folder, err)
	}
	return nil
}

// installPrivateKey stages the key in a temp file for tmsh. The temp file
// is removed whether or not the install succeeds.
func (m *Manager) installPrivateKey(ctx context.Context, key *rsa.PrivateKey, folder, name string) error {
	tmp := filepath.Join(m.TempDir, uuid.NewString()+".key")
	der := x509.MarshalPKCS1PrivateKey(key)
	data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary private key: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			m.logger.Warn("Failed to remove temporary private key", zap.String("path", tmp), zap.Error(rmErr))
		}
	}()

	if _, err := m.tmsh(ctx, "install", "sys", "crypto", "key", keyObject(folder, name), "from-local-file", tmp); err != nil {
		return fmt.Errorf("failed to install private key: %w", err)
	}
	return nil
}

// PrivateKeyFilePath returns the filestore path holding the installed key
// folder/name.
func (m *Manager) PrivateKeyFilePath(ctx context.Context, folder, name string) (string, error) {
	dir := path.Join(filestoreRoot, folder+"_d", "certificate_key_d")
	out, err := m.Shell.Run(ctx, "ls", "-1t", dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}

	prefix := ":" + folder + ":" + name + ".key"
	for _, line := range strings.Split(out, "\n") {
		entry := strings.TrimSpace(line)
		if strings.HasPrefix(entry, prefix) {
			return path.Join(dir, entry), nil
		}
	}
	return "", fmt.Errorf("private key %s not found in %s", keyObject(folder, name), dir)
}

// PrivateKeyMetadata reads the key store record of folder/name.
func (m *Manager) PrivateKeyMetadata(ctx context.Context, folder, name string) (*Metadata, error) {
	out, err := m.tmsh(ctx, "list", "sys", "file", "ssl-key", keyObject(folder, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", keyObject(folder, name), err)
	}

	md := &Metadata{}
	if match := passphrasePattern.FindStringSubmatch(out); match != nil {
		md.Passphrase = match[1]
	}
	return md, nil
}
