package ports

import (
	"context"
	"time"

	"pollhub/contexts/identity-access/identity-service/domain/entities"
)

// UserRepository persists accounts. CreateUser must reject a duplicate email
// with ErrEmailTaken atomically with respect to concurrent signups.
type UserRepository interface {
	CreateUser(ctx context.Context, user entities.User) error
	GetUser(ctx context.Context, userID string) (entities.User, error)
	GetUserByEmail(ctx context.Context, email string) (entities.User, bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
