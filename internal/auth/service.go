package auth

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"bx-custody/internal/errs"
	"bx-custody/internal/model"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	pool   *pgxpool.Pool
	issuer string
	secret []byte
	ttl    time.Duration
}

func NewService(pool *pgxpool.Pool, issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{pool: pool, issuer: issuer, secret: secret, ttl: ttl}
}

// Register creates the user keyed by wallet. The UID is a random 8-digit
// display number, retried on the rare collision.
func (s *Service) Register(ctx context.Context, wallet, password string) (model.User, error) {
	if wallet == "" || len(password) < 8 {
		return model.User{}, errs.Validation("wallet and a password of at least 8 characters are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}
	for attempt := 0; attempt < 5; attempt++ {
		uid := 10000000 + rand.Int63n(90000000)
		var u model.User
		err = s.pool.QueryRow(ctx, `
			INSERT INTO users (wallet, uid, password_hash, created_at)
			VALUES ($1, $2, $3, NOW())
			RETURNING wallet, uid, created_at
		`, wallet, uid, string(hash)).Scan(&u.Wallet, &u.UID, &u.CreatedAt)
		if err == nil {
			return u, nil
		}
		if isUniqueViolation(err, "users_uid_key") {
			continue
		}
		if isUniqueViolation(err, "users_pkey") {
			return model.User{}, errs.Validation("wallet is already registered")
		}
		return model.User{}, err
	}
	return model.User{}, fmt.Errorf("could not allocate uid: %w", err)
}

func (s *Service) Login(ctx context.Context, wallet, password string) (string, model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, `
		SELECT wallet, uid, password_hash, created_at FROM users WHERE wallet = $1
	`, wallet).Scan(&u.Wallet, &u.UID, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", model.User{}, ErrInvalidCredentials
		}
		return "", model.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", model.User{}, ErrInvalidCredentials
	}
	token, err := s.signToken(u.Wallet)
	if err != nil {
		return "", model.User{}, err
	}
	u.PasswordHash = ""
	return token, u, nil
}

func (s *Service) Get(ctx context.Context, wallet string) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, `
		SELECT wallet, uid, created_at FROM users WHERE wallet = $1
	`, wallet).Scan(&u.Wallet, &u.UID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return u, errs.ErrNotFound
		}
		return u, err
	}
	return u, nil
}

func (s *Service) signToken(wallet string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   wallet,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// ParseToken returns the wallet the token was issued for.
func (s *Service) ParseToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidCredentials
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidCredentials
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
		return constraint == "" || strings.Contains(err.Error(), constraint)
	}
	return false
}
