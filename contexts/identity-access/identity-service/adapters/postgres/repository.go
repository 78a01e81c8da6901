package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pollhub/contexts/identity-access/identity-service/domain/entities"
	domainerrors "pollhub/contexts/identity-access/identity-service/domain/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateUser(ctx context.Context, user entities.User) error {
	row := userModelFromEntity(user)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrEmailTaken
		}
		return r.logError("identity_repo_create_user_failed", err, "user_id", user.UserID)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, userID string) (entities.User, error) {
	var row userModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.User{}, domainerrors.ErrUserNotFound
		}
		return entities.User{}, r.logError("identity_repo_get_user_failed", err, "user_id", strings.TrimSpace(userID))
	}
	return row.toEntity(), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (entities.User, bool, error) {
	var row userModel
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.User{}, false, nil
		}
		return entities.User{}, false, r.logError("identity_repo_get_user_by_email_failed", err)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "identity-access/identity-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("identity repository operation failed", fields...)
	return domainerrors.ErrStorageUnavailable
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// SystemClock implements ports.Clock using wall-clock UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator implements ports.IDGenerator using RFC 4122 UUID v4 values.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

type userModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	Email        string    `gorm:"column:email"`
	PasswordHash string    `gorm:"column:password_hash"`
	Role         string    `gorm:"column:role"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (userModel) TableName() string {
	return "users"
}

func userModelFromEntity(user entities.User) userModel {
	row := userModel{
		ID:           strings.TrimSpace(user.UserID),
		Name:         strings.TrimSpace(user.Name),
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		CreatedAt:    user.CreatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row
}

func (m userModel) toEntity() entities.User {
	return entities.User{
		UserID:       m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         entities.Role(m.Role),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}
