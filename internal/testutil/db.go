package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/database"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens an isolated in-memory SQLite database with every model migrated.
// A single connection is used so the shared-cache database lives as long as the test.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateUser inserts a user with the given display name
func CreateUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:          uuid.New(),
		Email:       fmt.Sprintf("%s-%s@example.com", strings.ToLower(name), uuid.NewString()[:8]),
		DisplayName: name,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// LinkTeam records an accepted invitation between two users and indexes it
func LinkTeam(t *testing.T, db *gorm.DB, from, to *domain.User) {
	t.Helper()
	inv := &domain.TeamInvitation{
		FromUserID:  from.ID,
		ToUserEmail: to.Email,
		ToUserID:    &to.ID,
		Status:      domain.InvitationStatusAccepted,
	}
	require.NoError(t, db.Create(inv).Error)
	rows := []domain.TeamMembership{
		{UserID: from.ID, MemberID: to.ID, InvitationID: inv.ID},
		{UserID: to.ID, MemberID: from.ID, InvitationID: inv.ID},
	}
	require.NoError(t, db.Create(&rows).Error)
}

// ContextFor returns a context carrying the user's identity
func ContextFor(user *domain.User, roles ...string) context.Context {
	return auth.WithUserContext(context.Background(), &auth.UserContext{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Roles:       roles,
	})
}
