package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// RoleAdmin é o papel exigido pela API administrativa
const RoleAdmin = "admin"

var (
	ErrSecretTooShort = errors.New("jwt secret key muito curta")
	ErrTokenExpired   = errors.New("token expirado")
	ErrInvalidToken   = errors.New("token inválido")
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin indica se o token concede acesso administrativo
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type KeyManager struct {
	secretKey []byte
	logger    *zap.Logger
}

// NewKeyManager cria um gerenciador de tokens HS256; o segredo precisa ter
// ao menos 32 bytes
func NewKeyManager(secret string, logger *zap.Logger) (*KeyManager, error) {
	if len(secret) < 32 {
		return nil, ErrSecretTooShort
	}
	return &KeyManager{
		secretKey: []byte(secret),
		logger:    logger,
	}, nil
}

func (km *KeyManager) GenerateToken(subject, role string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "fastgate",
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(km.secretKey)
	if err != nil {
		km.logger.Error("falha ao gerar token JWT", zap.Error(err))
		return "", err
	}
	return tokenString, nil
}

func (km *KeyManager) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de assinatura inesperado: %v", token.Header["alg"])
		}
		return km.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		km.logger.Debug("falha ao validar token JWT", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
