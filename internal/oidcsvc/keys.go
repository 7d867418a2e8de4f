// Copyright (c) 2025 Justin Cranford
//
// Package oidcsvc implements the OIDC authorization server surface:
// /authorize, /token, JWKS, discovery and userinfo (spec §4.2).
package oidcsvc

import (
	"crypto/rand"
	"crypto/rsa"

	reauthApperr "github.com/reauth/reauth/internal/apperr"

	googleUuid "github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const rsaKeyBits = 2048

// KeyManager owns the single RS256 signing key a realm's tokens are
// minted and verified with, published at JWKS with a stable kid (spec
// §4.2 "publishes one RS256 public key with a stable kid").
type KeyManager struct {
	kid        string
	privateKey jwk.Key
	publicSet  jwk.Set
}

// NewKeyManager generates a fresh RSA keypair and wraps it as a JWK
// with alg=RS256 and a UUIDv7 kid. A production deployment would load
// this from the barrier-sealed key store instead; spec §1 names key
// persistence as an out-of-scope collaborator.
func NewKeyManager() (*KeyManager, error) {
	raw, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	privateKey, err := jwk.Import(raw)
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	kid := googleUuid.Must(googleUuid.NewV7()).String()
	if err := privateKey.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	if err := privateKey.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	publicKey, err := jwk.PublicKeyOf(privateKey)
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	if err := publicKey.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(publicKey); err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	return &KeyManager{kid: kid, privateKey: privateKey, publicSet: set}, nil
}

func (k *KeyManager) KeyID() string { return k.kid }

// JWKS returns the public key set served at
// /.well-known/jwks.json.
func (k *KeyManager) JWKS() jwk.Set { return k.publicSet }
