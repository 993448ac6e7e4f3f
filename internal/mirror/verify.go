package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// Verifier checks downloaded archives against a detached OpenPGP signature
// published next to them.
type Verifier struct {
	keyring      openpgp.EntityList
	signatureURL string
}

// NewVerifier loads an armored or binary keyring from keyringPath.
// signatureURL is a template; {owner}, {repo}, {branch} and {revision} are
// substituted per sync.
func NewVerifier(keyringPath, signatureURL string) (*Verifier, error) {
	if signatureURL == "" {
		return nil, fmt.Errorf("signature URL is required")
	}

	keyring, err := loadKeyring(keyringPath)
	if err != nil {
		return nil, err
	}

	return &Verifier{
		keyring:      keyring,
		signatureURL: signatureURL,
	}, nil
}

// SignatureURL expands the signature URL template for a revision.
func (v *Verifier) SignatureURL(loc Locator, rev RevisionID) string {
	r := strings.NewReplacer(
		"{owner}", loc.Owner,
		"{repo}", loc.Name,
		"{branch}", loc.Branch,
		"{revision}", string(rev),
	)
	return r.Replace(v.signatureURL)
}

// Verify checks the detached signature at signaturePath over archivePath.
func (v *Verifier) Verify(archivePath, signaturePath string) error {
	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open archive: %w", ErrVerifyFailed, err)
	}
	defer archive.Close()

	sig, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("%w: open signature: %w", ErrVerifyFailed, err)
	}
	defer sig.Close()

	// Try armored first
	_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, archive, sig, nil)
	if err != nil {
		if _, serr := archive.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("%w: rewind archive: %w", ErrVerifyFailed, serr)
		}
		if _, serr := sig.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("%w: rewind signature: %w", ErrVerifyFailed, serr)
		}
		_, err = openpgp.CheckDetachedSignature(v.keyring, archive, sig, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerifyFailed, err)
	}

	return nil
}

// loadKeyring loads a GPG keyring from disk
func loadKeyring(path string) (openpgp.EntityList, error) {
	keyringFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		// Try reading as non-armored keyring
		if _, serr := keyringFile.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("rewind keyring: %w", serr)
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// ArchiveDigest returns the hex SHA-256 of a file.
func ArchiveDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
