// Package keystore holds the HMAC keys used to sign archived race records.
package keystore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// LegacyKeyID names the key loaded from the single-key AUDIT_SIGNING_KEY variable.
const LegacyKeyID = "default"

var (
	ErrKeyNotFound   = errors.New("signing key not found")
	ErrNoCurrentKey  = errors.New("current signing key not configured")
	errInvalidFormat = errors.New("invalid AUDIT_SIGNING_KEYS format")
)

// StaticKeyStore is an in-memory set of signing keys with one current key.
// Older keys stay available so previously archived records still verify.
type StaticKeyStore struct {
	keys         map[string][]byte
	currentKeyID string
}

// New builds a keystore from explicit keys.
func New(keys map[string][]byte, currentKeyID string) *StaticKeyStore {
	ks := &StaticKeyStore{keys: make(map[string][]byte, len(keys)), currentKeyID: currentKeyID}
	for id, k := range keys {
		ks.keys[id] = k
	}
	return ks
}

// NewFromEnv builds a keystore from environment variables.
// AUDIT_SIGNING_KEYS format: "keyId:hex,keyId2:hex".
// AUDIT_SIGNING_KEY_ID selects the key used for new signatures.
// AUDIT_SIGNING_KEY registers a single hex key under LegacyKeyID.
func NewFromEnv() (*StaticKeyStore, error) {
	keys := make(map[string][]byte)
	if raw := os.Getenv("AUDIT_SIGNING_KEYS"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			parts := strings.SplitN(p, ":", 2)
			if len(parts) != 2 || parts[0] == "" {
				return nil, errInvalidFormat
			}
			key, err := hex.DecodeString(parts[1])
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", parts[0], err)
			}
			keys[parts[0]] = key
		}
	}

	current := os.Getenv("AUDIT_SIGNING_KEY_ID")
	if raw := os.Getenv("AUDIT_SIGNING_KEY"); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("AUDIT_SIGNING_KEY must be hex: %w", err)
		}
		keys[LegacyKeyID] = key
		if current == "" {
			current = LegacyKeyID
		}
	}
	if current != "" {
		if _, ok := keys[current]; !ok {
			return nil, fmt.Errorf("AUDIT_SIGNING_KEY_ID %q: %w", current, ErrKeyNotFound)
		}
	}
	return New(keys, current), nil
}

// Empty reports whether no key is configured for signing.
func (s *StaticKeyStore) Empty() bool {
	return s.currentKeyID == ""
}

// GetKey returns the key registered under keyID.
func (s *StaticKeyStore) GetKey(keyID string) ([]byte, error) {
	key, ok := s.keys[keyID]
	if !ok || len(key) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	return key, nil
}

// CurrentKey returns the key id and key used for new signatures.
func (s *StaticKeyStore) CurrentKey() (string, []byte, error) {
	if s.currentKeyID == "" {
		return "", nil, ErrNoCurrentKey
	}
	key, err := s.GetKey(s.currentKeyID)
	return s.currentKeyID, key, err
}
