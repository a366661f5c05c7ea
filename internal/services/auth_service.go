package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"giftspa/server/internal/models"
)

// TokenTTL срок жизни токена администратора
const TokenTTL = time.Hour

// Claims полезная нагрузка JWT: sub, email, role, companyId
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
	jwt.RegisteredClaims
}

// Actor кто выполняет действие (из токена)
type Actor struct {
	UserID    string
	Email     string
	Role      string
	CompanyID string
}

// ActorFromClaims собирает Actor из разобранного токена
func ActorFromClaims(c *Claims) Actor {
	return Actor{UserID: c.Subject, Email: c.Email, Role: c.Role, CompanyID: c.CompanyID}
}

// IsGlobal admin/superadmin без ограничения по филиалу
func (a Actor) IsGlobal() bool {
	return models.IsGlobalRole(a.Role)
}

// CanAccessCompany менеджер видит только свой филиал
func (a Actor) CanAccessCompany(companyID string) bool {
	if a.IsGlobal() {
		return true
	}
	return a.Role == models.RoleManager && a.CompanyID != "" && a.CompanyID == companyID
}

// Label подпись для журнала событий
func (a Actor) Label() string {
	if a.Email == "" {
		return "system"
	}
	return "admin:" + a.Email
}

// AuthService логин администраторов и выпуск токенов
type AuthService struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
}

// NewAuthService создает новый сервис авторизации
func NewAuthService(db *gorm.DB, jwtSecret string) *AuthService {
	return &AuthService{db: db, secret: []byte(jwtSecret), ttl: TokenTTL}
}

// LoginResult токен и профиль
type LoginResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *models.AdminUser `json:"user"`
}

// Login проверяет пароль и выдает JWT
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var user models.AdminUser
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("неверный email или пароль: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("пользователь заблокирован: %w", ErrForbidden)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("неверный email или пароль: %w", ErrUnauthorized)
	}

	token, expiresAt, err := s.IssueToken(&user)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		log.Printf("⚠️ Не удалось обновить last_login_at для %s: %v", user.Email, err)
	}
	user.LastLoginAt = &now

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: &user}, nil
}

// IssueToken подписывает HS256 токен на час
func (s *AuthService) IssueToken(user *models.AdminUser) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if user.CompanyID != nil {
		claims.CompanyID = *user.CompanyID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken проверяет подпись и срок действия токена
func (s *AuthService) ParseToken(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, fmt.Errorf("токен не передан: %w", ErrUnauthorized)
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("недействительный токен: %v: %w", err, ErrUnauthorized)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("недействительный токен: %w", ErrUnauthorized)
	}
	return claims, nil
}

// CreateAdmin создает пользователя админки (certctl create-admin)
func (s *AuthService) CreateAdmin(ctx context.Context, email, password, role, companyID string) (*models.AdminUser, error) {
	email = NormalizeEmail(email)
	if email == "" || len(password) < 8 {
		return nil, validationErrorf("нужен email и пароль не короче 8 символов")
	}
	switch role {
	case models.RoleSuperAdmin, models.RoleAdmin:
	case models.RoleManager:
		if companyID == "" {
			return nil, validationErrorf("для менеджера обязателен филиал")
		}
	default:
		return nil, validationErrorf("неизвестная роль %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хеширования пароля: %w", err)
	}

	user := &models.AdminUser{
		Email:        email,
		PasswordHash: string(hash),
		Role:         strings.ToLower(role),
		IsActive:     true,
	}
	if companyID != "" {
		user.CompanyID = &companyID
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return user, nil
}
