package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

type JwtCustomClaim struct {
	UserId   string `json:"user_id"`
	UserName string `json:"user_name"`
	TenantId string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

func getJwtSecret() []byte {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return []byte("Logistics-Secret")
	}
	return []byte(secret)
}

func JwtGenerate(tenantId, userId, userName, role string) (string, error) {
	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil {
		tokenLifespan = 24
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		UserId:   userId,
		UserName: userName,
		TenantId: tenantId,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})

	return t.SignedString(getJwtSecret())
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return getJwtSecret(), nil
	})
}
