package httpapi

import (
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"opentill/backend/internal/domain"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthManager issues and verifies the JWTs that back till sessions. The
// employee directory lives in memory; privilege levels travel inside the
// resolved Session, not inside the token, so permission edits take effect
// on the next request rather than at token renewal.
type AuthManager struct {
	mu       sync.RWMutex
	secret   []byte
	tokenTTL time.Duration
	staff    map[string]staffRecord
}

type staffRecord struct {
	passwordHash string
	employee     domain.Employee
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	SessionID string `json:"sid"`
}

type LoginRequest struct {
	EmployeeID string `json:"employee_id"`
	Password   string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	EmployeeID  string `json:"employee_id"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

func NewAuthManager(secret string, tokenTTL time.Duration) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	a := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		staff:    make(map[string]staffRecord),
	}
	a.seedDefaultManager()
	return a
}

// seedDefaultManager registers a full-authority account so a fresh
// deployment can be logged into before real staff exist.
func (a *AuthManager) seedDefaultManager() {
	hash, err := bcrypt.GenerateFromPassword([]byte("manager"), bcrypt.DefaultCost)
	if err != nil {
		return
	}
	a.staff["manager"] = staffRecord{
		passwordHash: string(hash),
		employee: domain.Employee{
			ID:   "manager",
			RID:  "0000",
			Name: "Store Manager",
			Level: []domain.Access{
				{Action: domain.ActionCreateTransaction, Authority: 2},
				{Action: domain.ActionModifyTransaction, Authority: 2},
				{Action: domain.ActionDeleteTransaction, Authority: 2},
				{Action: domain.ActionFetchTransaction, Authority: 2},
				{Action: domain.ActionCreatePromotion, Authority: 2},
				{Action: domain.ActionModifyPromotion, Authority: 2},
				{Action: domain.ActionFetchPromotion, Authority: 2},
			},
		},
	}
}

// RegisterEmployee adds or replaces a staff account. Passwords are stored
// bcrypt-hashed only.
func (a *AuthManager) RegisterEmployee(employee domain.Employee, password string) error {
	if strings.TrimSpace(employee.ID) == "" {
		return errors.New("employee id is required")
	}
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.staff[employee.ID] = staffRecord{passwordHash: string(hash), employee: employee}
	a.mu.Unlock()
	return nil
}

func (a *AuthManager) Login(req LoginRequest) (LoginResponse, error) {
	id := strings.TrimSpace(req.EmployeeID)

	a.mu.RLock()
	record, ok := a.staff[id]
	a.mu.RUnlock()
	if !ok {
		return LoginResponse{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(record.passwordHash), []byte(req.Password)) != nil {
		return LoginResponse{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(id, expiresAt)
	if err != nil {
		return LoginResponse{}, err
	}

	return LoginResponse{
		AccessToken: token,
		EmployeeID:  record.employee.ID,
		Name:        record.employee.Name,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ResolveSession verifies the token and rebuilds the Session, attaching the
// employee's current privilege levels from the directory.
func (a *AuthManager) ResolveSession(tokenStr string) (domain.Session, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Session{}, errors.New("invalid or expired token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Session{}, errors.New("invalid token subject")
	}

	a.mu.RLock()
	record, ok := a.staff[sub]
	a.mu.RUnlock()
	if !ok {
		return domain.Session{}, errors.New("unknown employee")
	}

	expiry := time.Time{}
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	return domain.Session{
		ID:       claims.SessionID,
		Key:      tokenStr,
		Employee: record.employee,
		Expiry:   expiry,
	}, nil
}

func (a *AuthManager) sign(employeeID string, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   employeeID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "opentill",
		},
		SessionID: uuid.NewString(),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
