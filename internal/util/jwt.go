package util

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RememberClaims 记住我 Cookie 的签名内容，只用于重建会话
type RememberClaims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

func GenerateRememberToken(userID uint, secret string, ttl time.Duration, now time.Time) (string, error) {
	claims := &RememberClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   "remember",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseRememberToken(tokenString, secret string) (*RememberClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RememberClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*RememberClaims); ok && token.Valid && claims.Subject == "remember" {
		return claims, nil
	}
	return nil, errors.New("invalid remember token")
}
