// Package auth issues and verifies the HS256 tokens of the reference
// incident API.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrInvalidTokenType = errors.New("auth: invalid token type")
)

type Claims struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair is what a successful login returns.
type Pair struct {
	Access    string
	Refresh   string
	AccessJTI string
	ExpiresAt time.Time
}

type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewManager(secret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs an access and a refresh token for one user.
func (m *Manager) Issue(userID int64, username, role string) (Pair, error) {
	now := m.now().UTC()

	access, jti, exp, err := m.sign(userID, username, role, TypeAccess, now, m.accessTTL)
	if err != nil {
		return Pair{}, err
	}

	refresh, _, _, err := m.sign(userID, username, role, TypeRefresh, now, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}

	return Pair{Access: access, Refresh: refresh, AccessJTI: jti, ExpiresAt: exp}, nil
}

// IssueWithTTL signs a single access token; tests use it to mint expired ones.
func (m *Manager) IssueWithTTL(userID int64, username, role string, ttl time.Duration) (string, error) {
	tok, _, _, err := m.sign(userID, username, role, TypeAccess, m.now().UTC(), ttl)
	return tok, err
}

func (m *Manager) sign(userID int64, username, role, typ string, now time.Time, ttl time.Duration) (string, string, time.Time, error) {
	jti := uuid.NewString()
	exp := now.Add(ttl)

	claims := Claims{
		UserID:    userID,
		Username:  username,
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	return raw, jti, exp, err
}

func (m *Manager) parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}
