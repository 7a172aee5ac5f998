package auth

import "github.com/tabledrop/backend/internal/models"

// ServiceInterface defines the contract for authentication operations.
// This enables mocking for unit tests without requiring a real database.
type ServiceInterface interface {
	// Registration and Login
	RegisterUser(req RegisterRequest) (*AuthResponse, error)
	LoginUser(req LoginRequest) (*AuthResponse, error)

	// User lookup
	FindUserByEmail(email string) (*models.User, error)

	// Token operations
	GenerateTokenForUser(user *models.User) (*AuthResponse, error)
	ValidateToken(tokenString string) (*models.User, error)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
