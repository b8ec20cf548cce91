// Package keystore loads and holds the signing credentials the marketplace
// operates with: the contract owner and, optionally, a separate buyer.
// Credentials come from an environment-supplied hex key, an age-encrypted
// key file, or a BIP39 mnemonic; they are loaded once at startup and are
// immutable afterwards. Private key material never leaves this package
// except as a copy handed to the signer, and never appears in logs, errors,
// or responses.
package keystore

import (
	"bytes"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/term"

	"github.com/snaillabs/snailmarket/internal/chain/eth"
	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// Role names a credential by what it is allowed to do.
type Role string

// Credential roles.
const (
	// RoleOwner signs addSnail and withdraw transactions.
	RoleOwner Role = "owner"
	// RoleBuyer signs buySnails transactions.
	RoleBuyer Role = "buyer"
)

// Source describes where a credential's key material comes from. Exactly one
// of HexKey, KeyFile, or Mnemonic must be set.
type Source struct {
	// HexKey is a raw hex-encoded secp256k1 private key.
	HexKey string
	// KeyFile is a path to an age-encrypted file whose plaintext is a hex key.
	KeyFile string
	// Passphrase decrypts KeyFile. When empty and stdin is a terminal, the
	// passphrase is prompted for interactively at startup.
	Passphrase string
	// Mnemonic is a BIP39 phrase; the key is derived at m/44'/60'/0'/0/{AccountIndex}.
	Mnemonic string
	// AccountIndex selects the derivation index for Mnemonic sources.
	AccountIndex uint32
}

// IsZero reports whether no key material was configured.
func (s Source) IsZero() bool {
	return s.HexKey == "" && s.KeyFile == "" && s.Mnemonic == ""
}

// Credential is a loaded signing identity.
type Credential struct {
	role    Role
	address string
	key     []byte
}

// Role returns the credential's role.
func (c *Credential) Role() Role { return c.role }

// Address returns the EIP-55 checksummed address the credential controls.
func (c *Credential) Address() string { return c.address }

// PrivateKey returns a fresh copy of the key bytes. Callers zero the copy
// when done; the keystore retains the original for the process lifetime.
func (c *Credential) PrivateKey() []byte {
	cp := make([]byte, len(c.key))
	copy(cp, c.key)
	return cp
}

// String implements fmt.Stringer without exposing key material.
func (c *Credential) String() string {
	return string(c.role) + ":" + c.address
}

// Keystore holds the loaded credentials, indexed by role.
type Keystore struct {
	creds map[Role]*Credential
}

// New builds a keystore from per-role sources. The owner is mandatory; the
// buyer is optional and falls back to the owner credential when absent, which
// matches a single-operator deployment.
func New(owner, buyer Source) (*Keystore, error) {
	if owner.IsZero() {
		return nil, mkterr.WithDetails(mkterr.ErrCredentialNotFound, map[string]string{
			"role": string(RoleOwner),
		})
	}

	ownerCred, err := load(RoleOwner, owner)
	if err != nil {
		return nil, err
	}

	ks := &Keystore{creds: map[Role]*Credential{RoleOwner: ownerCred}}

	if !buyer.IsZero() {
		buyerCred, err := load(RoleBuyer, buyer)
		if err != nil {
			return nil, err
		}
		ks.creds[RoleBuyer] = buyerCred
	}

	return ks, nil
}

// Resolve returns the credential for a role. A missing buyer resolves to the
// owner; the fallback is explicit here rather than implied at call sites.
func (ks *Keystore) Resolve(role Role) (*Credential, error) {
	if cred, ok := ks.creds[role]; ok {
		return cred, nil
	}

	if role == RoleBuyer {
		if cred, ok := ks.creds[RoleOwner]; ok {
			return cred, nil
		}
	}

	return nil, mkterr.WithDetails(mkterr.ErrCredentialNotFound, map[string]string{
		"role": string(role),
	})
}

// load materializes a credential from its source.
func load(role Role, src Source) (*Credential, error) {
	var keyHex string

	switch {
	case src.HexKey != "":
		keyHex = src.HexKey

	case src.KeyFile != "":
		decrypted, err := decryptKeyFile(src.KeyFile, src.Passphrase)
		if err != nil {
			return nil, err
		}
		keyHex = decrypted

	case src.Mnemonic != "":
		derived, err := deriveFromMnemonic(src.Mnemonic, src.AccountIndex)
		if err != nil {
			return nil, err
		}
		return newCredential(role, derived)

	default:
		return nil, mkterr.WithDetails(mkterr.ErrCredentialNotFound, map[string]string{
			"role": string(role),
		})
	}

	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil || len(key) != 32 {
		// The hex text itself is secret; report only its shape
		return nil, mkterr.WithDetails(mkterr.ErrCredentialNotFound, map[string]string{
			"role":   string(role),
			"reason": "key is not 32 bytes of hex",
		})
	}

	return newCredential(role, key)
}

func newCredential(role Role, key []byte) (*Credential, error) {
	address, err := eth.DeriveAddress(key)
	if err != nil {
		return nil, err
	}

	return &Credential{
		role:    role,
		address: address,
		key:     key,
	}, nil
}

// decryptKeyFile reads an age-encrypted key file, prompting for the
// passphrase when none is configured and stdin is an interactive terminal.
func decryptKeyFile(path, passphrase string) (string, error) {
	// #nosec G304 -- key file path comes from validated config
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return "", mkterr.WithCause(mkterr.ErrCredentialNotFound, err)
	}

	if passphrase == "" {
		passphrase, err = promptPassphrase(path)
		if err != nil {
			return "", err
		}
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return "", mkterr.WithCause(mkterr.ErrDecryptionFailed, err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return "", mkterr.WithDetails(mkterr.ErrDecryptionFailed, map[string]string{
			"file": path,
		})
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", mkterr.WithCause(mkterr.ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// promptPassphrase asks for the key file passphrase on the terminal. Fails
// in non-interactive deployments, where the passphrase must come from the
// environment instead.
func promptPassphrase(path string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", mkterr.WithDetails(mkterr.ErrDecryptionFailed, map[string]string{
			"file":   path,
			"reason": "no passphrase configured and stdin is not a terminal",
		})
	}

	os.Stderr.WriteString("passphrase for " + path + ": ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	os.Stderr.WriteString("\n")
	if err != nil {
		return "", mkterr.WithCause(mkterr.ErrDecryptionFailed, err)
	}

	return string(pw), nil
}

// hardened offsets a BIP32 child index into the hardened range.
const hardened = bip32.FirstHardenedChild

// deriveFromMnemonic derives the secp256k1 key at m/44'/60'/0'/0/{index}
// from a BIP39 phrase with an empty BIP39 passphrase.
func deriveFromMnemonic(mnemonic string, index uint32) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, mkterr.ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, "")

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrInvalidMnemonic, err)
	}

	// m/44'/60'/0'/0/{index} - the standard Ethereum path
	path := []uint32{hardened + 44, hardened + 60, hardened + 0, 0, index}

	key := master
	for _, step := range path {
		key, err = key.NewChildKey(step)
		if err != nil {
			return nil, mkterr.WithCause(mkterr.ErrInvalidMnemonic, err)
		}
	}

	return key.Key, nil
}
