package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
)

const issuer = "fal-studio"

var ErrInvalidToken = errors.New("invalid proxy token")

// Sign 签发代理访问令牌，subject 通常是调用方标识
func Sign(secret string, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("proxy access secret is empty")
	}
	now := time.Now()
	claims := jwt.StandardClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  now.Unix(),
		NotBefore: now.Add(-5 * time.Second).Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify 校验签名与有效期，返回令牌中的 subject
func Verify(secret string, tokenString string) (string, error) {
	claims := &jwt.StandardClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !parsed.Valid || claims.Issuer != issuer {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
