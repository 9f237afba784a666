package main

import (
	"crypto/rand"
	"discord-rag-backend/middleware"
	"encoding/base64"
	"flag"
	"log/slog"
)

// 生成JWT密钥；传入-email时用当前配置的密钥直接签发一个token，方便联调
func main() {
	email := flag.String("email", "", "mint a token for this email instead of generating a secret")
	flag.Parse()

	if *email != "" {
		token, err := middleware.GenerateToken(*email)
		if err != nil {
			slog.Error("Error generating token", "err", err)
			return
		}
		slog.Info("Generated token", "email", *email, "token", token)
		return
	}

	secret, err := generateJWTSecret()
	if err != nil {
		slog.Error("Error generating secret", "err", err)
		return
	}
	slog.Info("Generated JWT Secret:", "secret", secret)
}

func generateJWTSecret() (string, error) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}
