package usecase

import (
	authdomain "leadmail-backend/internal/auth/domain"
	authdto "leadmail-backend/internal/auth/dto"
)

// SyncActivator starts and stops background reply monitoring for a user.
// Implemented by the reply engine manager; injected via setter to avoid an
// import cycle between auth and reply packages.
type SyncActivator interface {
	StartForUser(user *authdomain.User)
	StopForUser(userID string)
}

// AuthUsecase defines the business logic contract for authentication
type AuthUsecase interface {
	Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	GoogleSignIn(req *authdto.GoogleSignInRequest) (*authdto.TokenResponse, error)
	RefreshToken(refreshToken string) (*authdto.TokenResponse, error)
	Logout(userID, refreshToken string) error
	ValidateToken(tokenString string) (*authdomain.User, error)
	RegisterFCMToken(userID, token string) error
	UpdateGoogleTokens(userID, accessToken, refreshToken string, expiry int64) error

	SetSyncActivator(activator SyncActivator)
}
