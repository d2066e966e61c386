package security

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrJWTSecretMissing = errors.New("JWT_SECRET is not set")
	ErrTokenMissing     = errors.New("bearer token is missing")
)

const defaultTokenTTL = 7 * 24 * time.Hour

// Claims 是会话凭证里携带的身份。
type Claims struct {
	UID      int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func jwtSecret() ([]byte, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, ErrJWTSecretMissing
	}
	return []byte(secret), nil
}

// Award 签发 Token（默认 7 天过期）。
func Award(uid int64, username string) (string, error) {
	return AwardWithTTL(uid, username, defaultTokenTTL)
}

func AwardWithTTL(uid int64, username string, ttl time.Duration) (string, error) {
	key, err := jwtSecret()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := &Claims{
		UID:      uid,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ParseToken 解析并验证 Token。
func ParseToken(tokenStr string) (*jwt.Token, *Claims, error) {
	key, err := jwtSecret()
	if err != nil {
		return nil, nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return key, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if token == nil || !token.Valid || claims.UID == 0 {
		return nil, nil, jwt.ErrTokenInvalidClaims
	}
	return token, claims, nil
}

// BearerToken 从 Authorization 头或 token 查询参数里取凭证，头优先。
func BearerToken(authorization, query string) (string, error) {
	if v := strings.TrimSpace(authorization); v != "" {
		const prefix = "bearer "
		if len(v) > len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
			return strings.TrimSpace(v[len(prefix):]), nil
		}
	}
	if q := strings.TrimSpace(query); q != "" {
		return q, nil
	}
	return "", ErrTokenMissing
}
