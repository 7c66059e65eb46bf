package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/policy"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
)

// UserService handles user management and authentication
type UserService struct {
	users     repository.UserRepository
	cards     repository.CardRepository
	log       *logrus.Logger
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewUserService initializes a new user service
func NewUserService(users repository.UserRepository, cards repository.CardRepository, log *logrus.Logger, jwtSecret string, tokenTTL time.Duration) *UserService {
	return &UserService{
		users:     users,
		cards:     cards,
		log:       log,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// CreateUser registers a user with a hashed password
func (s *UserService) CreateUser(ctx context.Context, actor models.Actor, req models.UserRequest) (*models.UserView, error) {
	if !s.canManage(actor) {
		return nil, ErrForbidden
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	user := &models.User{
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: string(hashedPassword),
		Role:         role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUsername, req.Username)
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("User created")
	return &models.UserView{ID: user.ID, Username: user.Username, FullName: user.FullName, Role: user.Role, Cards: []string{}}, nil
}

// GetUser returns the user with the given id
func (s *UserService) GetUser(ctx context.Context, actor models.Actor, id int64) (*models.UserView, error) {
	if !s.canManage(actor) {
		return nil, ErrForbidden
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrUserNotFound)
	}
	return s.toView(ctx, user)
}

// GetUserByFullName returns the first user with the given full name
func (s *UserService) GetUserByFullName(ctx context.Context, actor models.Actor, fullName string) (*models.UserView, error) {
	if !s.canManage(actor) {
		return nil, ErrForbidden
	}
	user, err := s.users.GetUserByFullName(ctx, fullName)
	if err != nil {
		return nil, storeErr(err, ErrUserNotFound)
	}
	return s.toView(ctx, user)
}

// ListUsers returns one page of users
func (s *UserService) ListUsers(ctx context.Context, actor models.Actor, page models.PageRequest) (*models.Page[models.UserView], error) {
	if !s.canManage(actor) {
		return nil, ErrForbidden
	}

	page = page.Normalize()
	users, total, err := s.users.ListUsers(ctx, page)
	if err != nil {
		return nil, storeErr(err, ErrUserNotFound)
	}

	views := make([]models.UserView, 0, len(users))
	for i := range users {
		view, err := s.toView(ctx, &users[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	result := models.NewPage(views, page, total)
	return &result, nil
}

// UpdateUser changes the full name. Username and password change only when
// set in req. The role is fixed at creation and req.Role is ignored.
func (s *UserService) UpdateUser(ctx context.Context, actor models.Actor, id int64, req models.UserRequest) (*models.UserView, error) {
	if !s.canManage(actor) {
		return nil, ErrForbidden
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrUserNotFound)
	}

	user.FullName = req.FullName
	if req.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = string(hashedPassword)
	}
	if req.Username != "" {
		user.Username = req.Username
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUsername, req.Username)
		}
		return nil, storeErr(err, ErrUserNotFound)
	}

	s.log.WithField("user_id", id).Info("User updated")
	return s.toView(ctx, user)
}

// DeleteUser removes a user together with their cards
func (s *UserService) DeleteUser(ctx context.Context, actor models.Actor, id int64) error {
	if !s.canManage(actor) {
		return ErrForbidden
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return storeErr(err, ErrUserNotFound)
	}
	s.log.WithField("user_id", id).Info("User deleted")
	return nil
}

// Login authenticates a user and returns a JWT token
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.WithField("user_id", user.ID).Info("User logged in")
	return tokenString, nil
}

// ResolveActor loads the current role of an authenticated user
func (s *UserService) ResolveActor(ctx context.Context, userID int64) (models.Actor, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return models.Actor{}, storeErr(err, ErrUserNotFound)
	}
	return models.ActorOf(user), nil
}

// EnsureAdmin creates an ADMIN account when no user exists yet.
// It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password, fullName string) (bool, error) {
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	bootstrap := models.Actor{Role: models.RoleAdmin}
	_, err = s.CreateUser(ctx, bootstrap, models.UserRequest{
		Username: username,
		FullName: fullName,
		Password: password,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *UserService) canManage(actor models.Actor) bool {
	return policy.Authorize(actor, policy.ActionManageUsers, policy.Resource{}) == policy.Allow
}

func (s *UserService) toView(ctx context.Context, user *models.User) (*models.UserView, error) {
	masked := []string{}
	for page := 0; ; page++ {
		cards, total, err := s.cards.ListCardsByOwner(ctx, user.ID, models.PageRequest{Page: page, Size: models.MaxPageSize, Sort: "id"})
		if err != nil {
			return nil, fmt.Errorf("failed to load cards of user %d: %w", user.ID, err)
		}
		for _, c := range cards {
			masked = append(masked, utils.MaskNumber(c.Last4))
		}
		if len(cards) == 0 || int64((page+1)*models.MaxPageSize) >= total {
			break
		}
	}
	return &models.UserView{
		ID:       user.ID,
		Username: user.Username,
		FullName: user.FullName,
		Role:     user.Role,
		Cards:    masked,
	}, nil
}
