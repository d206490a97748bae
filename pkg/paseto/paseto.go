package pasetotoken

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/google/uuid"
)

const defaultAccessTTL = 15 * time.Minute

// Claim keys beyond the registered ones.
const (
	claimType    = "typ"
	claimUser    = "uid"
	claimSession = "sid"
)

type Config struct {
	Mode Mode

	Issuer   string
	Audience string

	AccessTTL time.Duration

	// Implicit is bound into every token without being transmitted.
	Implicit []byte
}

// Manager verifies v4 access tokens minted by the platform auth service. It
// can mint its own when it holds a secret (local mode, or public mode with a
// secret key); verify-only deployments get ErrCannotIssue.
type Manager struct {
	cfg    Config
	parser paseto.Parser
	seal   func(*paseto.Token) string
	open   func(paseto.Parser, string) (*paseto.Token, error)
	now    func() time.Time
}

func New(cfg Config, keys Keys) (*Manager, error) {
	switch {
	case cfg.Mode != keys.Mode:
		return nil, ErrConfig{Msg: "cfg.Mode must match keys.Mode"}
	case cfg.Issuer == "":
		return nil, ErrConfig{Msg: "Issuer is required"}
	case cfg.Audience == "":
		return nil, ErrConfig{Msg: "Audience is required"}
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}

	m := &Manager{cfg: cfg, now: time.Now}
	m.parser = paseto.NewParser()
	m.parser.AddRule(paseto.IssuedBy(cfg.Issuer))
	m.parser.AddRule(paseto.ForAudience(cfg.Audience))
	m.parser.AddRule(paseto.NotExpired())

	switch keys.Mode {
	case ModeLocal:
		if keys.Symmetric == nil {
			return nil, ErrConfig{Msg: "missing symmetric key"}
		}
		k := *keys.Symmetric
		m.seal = func(t *paseto.Token) string { return t.V4Encrypt(k, cfg.Implicit) }
		m.open = func(p paseto.Parser, s string) (*paseto.Token, error) { return p.ParseV4Local(k, s, cfg.Implicit) }
	case ModePublic:
		if keys.Public == nil {
			return nil, ErrConfig{Msg: "missing public key"}
		}
		pk := *keys.Public
		m.open = func(p paseto.Parser, s string) (*paseto.Token, error) { return p.ParseV4Public(pk, s, cfg.Implicit) }
		if keys.Secret != nil {
			sk := *keys.Secret
			m.seal = func(t *paseto.Token) string { return t.V4Sign(sk, cfg.Implicit) }
		}
	default:
		return nil, ErrConfig{Msg: "unknown mode"}
	}
	return m, nil
}

// IssueAccess mints an access token for userID. sessionID binds the token to
// a login session whose key must stay alive in Redis.
func (m *Manager) IssueAccess(userID uuid.UUID, sessionID *uuid.UUID) (string, error) {
	if m.seal == nil {
		return "", ErrCannotIssue
	}

	now := m.now()
	tok := paseto.NewToken()
	tok.SetIssuer(m.cfg.Issuer)
	tok.SetAudience(m.cfg.Audience)
	tok.SetJti(randHex(16))
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(now.Add(m.cfg.AccessTTL))
	tok.SetSubject(userID.String())
	tok.SetString(claimType, string(TokenTypeAccess))
	tok.SetString(claimUser, userID.String())
	if sessionID != nil {
		tok.SetString(claimSession, sessionID.String())
	}
	return m.seal(tok), nil
}

func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	tok, err := m.open(m.parser, tokenStr)
	if err != nil {
		return nil, ErrInvalidToken{Err: err}
	}
	claims, err := readClaims(tok)
	if err != nil {
		return nil, ErrInvalidToken{Err: err}
	}
	return claims, nil
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func readClaims(tok *paseto.Token) (*Claims, error) {
	var (
		out Claims
		err error
	)
	if out.TokenID, err = tok.GetJti(); err != nil {
		return nil, err
	}
	if out.IssuedAt, err = tok.GetIssuedAt(); err != nil {
		return nil, err
	}
	if out.ExpiresAt, err = tok.GetExpiration(); err != nil {
		return nil, err
	}

	typ, err := tok.GetString(claimType)
	if err != nil {
		return nil, err
	}
	out.Type = TokenType(typ)

	uid, err := tok.GetString(claimUser)
	if err != nil {
		return nil, err
	}
	if out.UserID, err = uuid.Parse(uid); err != nil {
		return nil, err
	}

	// sid is optional
	if sid, err := tok.GetString(claimSession); err == nil {
		id, err := uuid.Parse(sid)
		if err != nil {
			return nil, err
		}
		out.SessionID = &id
	}
	return &out, nil
}
