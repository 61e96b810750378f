package util

import (
	"errors"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/tamimiqbalfysal/Today-2.2.5/config"
)

func GenerateToken(uid string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": uid,
		"exp": time.Now().Add(time.Hour * 24).Unix(),
	})

	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func ValidateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("令牌为空")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(config.AppConfig.JWTSecret), nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		uid, ok := claims["uid"].(string)
		if !ok || uid == "" {
			return "", errors.New("无效的用户ID")
		}
		return uid, nil
	}

	return "", errors.New("无效的令牌")
}

func RefreshToken(tokenString string) (string, error) {
	uid, err := ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return GenerateToken(uid)
}
