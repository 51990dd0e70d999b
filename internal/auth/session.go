// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session is what a valid token proves: a player seat in one room.
type Session struct {
	PlayerID uuid.UUID
	RoomCode string
}

// Sessions issues and verifies ed25519 signed session tokens.
type Sessions struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration // 0 means tokens never expire
}

// ParseTokenExpireTime interprets TOKEN_EXPIRE_TIME style values ("never", "0", "" or a duration).
func ParseTokenExpireTime(v string) (time.Duration, error) {
	if v == "never" || v == "0" || v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// NewSessions generates a fresh key pair. Tokens do not survive a restart, which matches the
// lifetime of the rooms they point into.
func NewSessions(ttl time.Duration) (*Sessions, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Sessions{privateKey: priv, publicKey: pub, ttl: ttl}, nil
}

// NewSessionsFromPath reads raw ed25519 keys from disk.
func NewSessionsFromPath(privatePath, publicPath string, ttl time.Duration) (*Sessions, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, errors.New("ed25519 key files have the wrong size")
	}
	return &Sessions{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		ttl:        ttl,
	}, nil
}

// CreateToken signs a token with "sub" = player id and "room" = room code.
func (s *Sessions) CreateToken(playerID uuid.UUID, roomCode string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  playerID.String(),
		"room": roomCode,
		"iat":  time.Now().Unix(),
	}
	if s.ttl > 0 {
		claims["exp"] = time.Now().Add(s.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// Authenticate verifies a token and returns the session it carries.
func (s *Sessions) Authenticate(tokenString string) (Session, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Session{}, errors.New("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, errors.New("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return Session{}, errors.New("missing sub in jwt")
	}
	playerID, err := uuid.Parse(sub)
	if err != nil {
		return Session{}, fmt.Errorf("invalid sub in jwt: %w", err)
	}
	room, ok := claims["room"].(string)
	if !ok || room == "" {
		return Session{}, errors.New("missing room in jwt")
	}
	return Session{PlayerID: playerID, RoomCode: room}, nil
}
