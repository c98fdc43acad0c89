package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vcv/internal/core/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// JoinClaims grant one named identity access to one room.
type JoinClaims struct {
	RoomID domain.RoomID `json:"room_id"`
	Name   string        `json:"name"`
	Role   domain.Role   `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and checks HS256 join tokens.
type AuthService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(secret, issuer string, ttl time.Duration) *AuthService {
	return &AuthService{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// IssueJoinToken returns a signed token and its expiry.
func (s *AuthService) IssueJoinToken(roomID domain.RoomID, name string, role domain.Role) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := &JoinClaims{
		RoomID: roomID,
		Name:   name,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   name,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (s *AuthService) ValidateJoinToken(tokenString string) (*JoinClaims, error) {
	claims := &JoinClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.RoomID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
