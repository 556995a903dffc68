// Package identity verifies and mints the PASETO v4.public bearer tokens that identify meeting hosts.
package identity

import (
	"errors"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const (
	// DefaultIssuer is the issuer claim expected when none is configured.
	DefaultIssuer = "meeting-coordinator"
	// DefaultClockSkew tolerates small clock differences between issuer and verifier.
	DefaultClockSkew = 30 * time.Second
	// DefaultTTL is the lifetime of tokens minted by Issuer.
	DefaultTTL = 24 * time.Hour
)

var (
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrInvalidKey is returned when key material cannot be decoded.
	ErrInvalidKey = errors.New("identity: invalid key")
)

// Claims is the verified content of a token.
type Claims struct {
	UserID    string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier checks tokens against a public key.
type Verifier struct {
	public    paseto.V4AsymmetricPublicKey
	issuer    string
	clockSkew time.Duration
}

// NewVerifier decodes a hex public key. An empty issuer falls back to DefaultIssuer.
func NewVerifier(publicKeyHex, issuer string) (*Verifier, error) {
	public, err := paseto.NewV4AsymmetricPublicKeyFromHex(strings.TrimSpace(publicKeyHex))
	if err != nil {
		return nil, ErrInvalidKey
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = DefaultIssuer
	}
	return &Verifier{public: public, issuer: issuer, clockSkew: DefaultClockSkew}, nil
}

// Verify parses the token and enforces issuer, validity window and a non-empty uid claim.
func (v *Verifier) Verify(token string, now time.Time) (Claims, error) {
	if v == nil || strings.TrimSpace(token) == "" {
		return Claims{}, ErrInvalidToken
	}

	// A fresh parser per call keeps rules from accumulating.
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(v.issuer))
	p.AddRule(paseto.ValidAt(now.Add(v.clockSkew)))

	parsed, err := p.ParseV4Public(v.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	exp, err := parsed.GetExpiration()
	if err != nil || !exp.After(now) {
		return Claims{}, ErrInvalidToken
	}
	uid, err := parsed.GetString("uid")
	if err != nil || strings.TrimSpace(uid) == "" {
		return Claims{}, ErrInvalidToken
	}
	iss, _ := parsed.GetIssuer()
	iat, _ := parsed.GetIssuedAt()

	return Claims{UserID: uid, Issuer: iss, IssuedAt: iat, ExpiresAt: exp}, nil
}

// Issuer mints tokens with a secret key.
type Issuer struct {
	secret paseto.V4AsymmetricSecretKey
	issuer string
	ttl    time.Duration
}

// NewIssuer decodes a hex secret key. Zero ttl falls back to DefaultTTL.
func NewIssuer(secretKeyHex, issuer string, ttl time.Duration) (*Issuer, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(strings.TrimSpace(secretKeyHex))
	if err != nil {
		return nil, ErrInvalidKey
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Issue signs a token for uid valid from now until now+ttl.
func (i *Issuer) Issue(uid string, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(uid) == "" {
		return "", time.Time{}, errors.New("identity: uid is required")
	}
	exp := now.Add(i.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(i.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	if err := tok.Set("uid", uid); err != nil {
		return "", time.Time{}, err
	}

	return tok.V4Sign(i.secret, nil), exp, nil
}

// PublicKeyHex returns the hex public key matching the issuer's secret.
func (i *Issuer) PublicKeyHex() string {
	return i.secret.Public().ExportHex()
}

// KeyPair is a hex encoded Ed25519 key pair.
type KeyPair struct {
	SecretKeyHex string
	PublicKeyHex string
}

// GenerateKeyPair creates a fresh v4.public key pair.
func GenerateKeyPair() KeyPair {
	secret := paseto.NewV4AsymmetricSecretKey()
	return KeyPair{SecretKeyHex: secret.ExportHex(), PublicKeyHex: secret.Public().ExportHex()}
}
