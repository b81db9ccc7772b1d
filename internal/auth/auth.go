package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lavoex/exchange-api/internal/ledger"
	"github.com/lavoex/exchange-api/internal/types"
	"github.com/lavoex/exchange-api/pkg/response"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}

// Profile bundles a user with their wallets for the /me endpoint.
type Profile struct {
	User    *types.User    `json:"user"`
	Wallets []types.Wallet `json:"wallets"`
}

// Service handles registration, login and token verification. Registration
// is the single point where wallets get provisioned.
type Service struct {
	db        *Database
	ledger    *ledger.Engine
	jwtSecret []byte
}

func NewService(gormDB *gorm.DB, jwtSecret string, engine *ledger.Engine) *Service {
	return &Service{
		db:        NewDatabase(gormDB),
		ledger:    engine,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new user, provisions one wallet per supported asset and
// returns a signed token.
func (s *Service) Register(email, password, fullName string) (*TokenResponse, error) {
	existing, err := s.db.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &types.User{
		UserID:       "USR_" + uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		KYCStatus:    types.KYCStatusPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.db.CreateUser(user); err != nil {
		// A racing registration can slip past the lookup above; the email
		// unique index catches it here.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if err := s.ledger.EnsureWallets(user.UserID); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "auth").
		Str("user_id", user.UserID).
		Msg("user registered")

	return s.issueToken(user)
}

// Login verifies the password and returns a signed token.
func (s *Service) Login(email, password string) (*TokenResponse, error) {
	user, err := s.db.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueToken(user)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Me returns the user record together with their wallets.
func (s *Service) Me(userID string) (*Profile, error) {
	user, err := s.db.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	wallets, err := s.ledger.Wallets(userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Wallets: wallets}, nil
}

// SubmitKYC records a KYC submission and approves it synchronously. A real
// review workflow would model this as a scheduled state transition; here the
// decision is immediate so the ledger flows stay deterministic.
func (s *Service) SubmitKYC(userID, documentType, documentNumber string) (*types.KYCSubmission, error) {
	user, err := s.db.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.KYCStatus = types.KYCStatusApproved
	user.KYCSubmittedAt = &now
	user.UpdatedAt = now
	if err := s.db.UpdateUser(user); err != nil {
		return nil, err
	}

	submission := &types.KYCSubmission{
		SubmissionID:   "KYC_" + uuid.New().String(),
		UserID:         userID,
		DocumentType:   documentType,
		DocumentNumber: documentNumber,
		Status:         types.KYCStatusApproved,
		SubmittedAt:    now,
		ReviewedAt:     &now,
	}
	if err := s.db.CreateKYCSubmission(submission); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "auth").
		Str("user_id", userID).
		Str("submission_id", submission.SubmissionID).
		Msg("kyc submission approved")
	return submission, nil
}

// EnsureAdmin creates or promotes the bootstrap administrator account.
// Called once at startup from configuration.
func (s *Service) EnsureAdmin(email, password string) error {
	existing, err := s.db.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.IsAdmin {
			return nil
		}
		existing.IsAdmin = true
		existing.UpdatedAt = time.Now()
		return s.db.UpdateUser(existing)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &types.User{
		UserID:       "USR_" + uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		KYCStatus:    types.KYCStatusApproved,
		IsAdmin:      true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.db.CreateUser(admin); err != nil {
		return err
	}
	if err := s.ledger.EnsureWallets(admin.UserID); err != nil {
		return err
	}

	log.Info().
		Str("service", "auth").
		Str("user_id", admin.UserID).
		Msg("admin account provisioned")
	return nil
}

func (s *Service) issueToken(user *types.User) (*TokenResponse, error) {
	expiration := time.Now().Add(24 * time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		UserID:  user.UserID,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RegisterHandler handles POST requests to register new users
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required,min=8"`
			FullName string `json:"full_name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		token, err := h.service.Register(body.Email, body.Password, body.FullName)
		if err == ErrEmailTaken {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// LoginHandler handles POST requests to authenticate users
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		token, err := h.service.Login(body.Email, body.Password)
		if err == ErrInvalidCredentials {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// MeHandler handles GET requests for the authenticated user's profile
func (h *GinHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := h.service.Me(c.GetString("user_id"))
		response.Handle(c, profile, err)
	}
}

// SubmitKYCHandler handles POST requests to submit KYC documents
func (h *GinHandlers) SubmitKYCHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			DocumentType   string `json:"document_type" binding:"required"`
			DocumentNumber string `json:"document_number" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		submission, err := h.service.SubmitKYC(c.GetString("user_id"), body.DocumentType, body.DocumentNumber)
		response.Handle(c, submission, err)
	}
}
