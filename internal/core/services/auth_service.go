package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

// TokenService issues and checks the robot's bearer tokens.
type TokenService interface {
	GenerateToken(robotID string) (string, error)
	ValidateToken(tokenString string) (*RobotClaims, error)
	// Authorize validates the token and checks it was issued for robotID.
	Authorize(tokenString, robotID string) (*RobotClaims, error)
}

type RobotClaims struct {
	RobotID string `json:"robot_id"`
	jwt.RegisteredClaims
}

type tokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) TokenService {
	return &tokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *tokenService) GenerateToken(robotID string) (string, error) {
	now := s.now()
	claims := &RobotClaims{
		RobotID: robotID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   robotID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *tokenService) ValidateToken(tokenString string) (*RobotClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RobotClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*RobotClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

func (s *tokenService) Authorize(tokenString, robotID string) (*RobotClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.RobotID != robotID {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
