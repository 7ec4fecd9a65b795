package repository

import (
	authdomain "leadmail-backend/internal/auth/domain"

	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines the interface for user persistence
type UserRepository interface {
	Create(user *authdomain.User) error
	FindByEmail(email string) (*authdomain.User, error)
	FindByID(id string) (*authdomain.User, error)
	Update(user *authdomain.User) error
	SaveRefreshToken(token *authdomain.RefreshToken) error
	FindRefreshToken(token string) (*authdomain.RefreshToken, error)
	DeleteRefreshToken(token string) error
	ListGoogleUsers() ([]*authdomain.User, error)
}

// FCMTokenRepository defines the interface for device token persistence
type FCMTokenRepository interface {
	Register(token *authdomain.FCMToken) error
	GetTokensByUserID(userID string) ([]string, error)
	DeleteToken(token string) error
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
