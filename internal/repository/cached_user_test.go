package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/recycle-kiosk/internal/models"
	"gorm.io/gorm"
)

// CachedUserRepositoryTestSuite 用户缓存仓储测试套件
type CachedUserRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo CachedUserRepository
}

func (suite *CachedUserRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.repo = NewCachedUserRepository(suite.db)
}

func (suite *CachedUserRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

// TestCachedUserRepository_Upsert 测试写入和更新缓存
func (suite *CachedUserRepositoryTestSuite) TestCachedUserRepository_Upsert() {
	ctx := context.Background()

	user := CreateTestCachedUser("04A3B2C1", 100)
	err := suite.repo.Upsert(ctx, user)
	assert.NoError(suite.T(), err)
	assert.NotZero(suite.T(), user.ID)

	// 同一卡号再次写入应更新而非新建
	updated := CreateTestCachedUser("04A3B2C1", 250)
	updated.Name = "更新后的用户"
	err = suite.repo.Upsert(ctx, updated)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), user.ID, updated.ID)

	count, err := suite.repo.Count(ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), count)

	found, err := suite.repo.FindByCardUID(ctx, "04A3B2C1")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(250), found.Points)
	assert.Equal(suite.T(), "更新后的用户", found.Name)
	assert.NotNil(suite.T(), found.LastSyncedAt)
}

// TestCachedUserRepository_FindByCardUID 测试按卡号查找
func (suite *CachedUserRepositoryTestSuite) TestCachedUserRepository_FindByCardUID() {
	ctx := context.Background()

	err := suite.repo.Upsert(ctx, CreateTestCachedUser("04AABBCC", 50))
	assert.NoError(suite.T(), err)

	found, err := suite.repo.FindByCardUID(ctx, "04AABBCC")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "user_04AABBCC", found.UserID)

	// 不存在的卡号
	_, err = suite.repo.FindByCardUID(ctx, "FFFFFFFF")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

// TestCachedUserRepository_AddPoints 测试离线积分记账
func (suite *CachedUserRepositoryTestSuite) TestCachedUserRepository_AddPoints() {
	ctx := context.Background()

	err := suite.repo.Upsert(ctx, CreateTestCachedUser("04A3B2C1", 100))
	assert.NoError(suite.T(), err)

	err = suite.repo.AddPoints(ctx, "04A3B2C1", 5)
	assert.NoError(suite.T(), err)

	found, err := suite.repo.FindByCardUID(ctx, "04A3B2C1")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(105), found.Points)

	// 卡号不存在时返回ErrNotFound
	err = suite.repo.AddPoints(ctx, "FFFFFFFF", 5)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

// TestCachedUserRepository_TouchVerified 测试更新验证时间
func (suite *CachedUserRepositoryTestSuite) TestCachedUserRepository_TouchVerified() {
	ctx := context.Background()

	user := CreateTestCachedUser("04A3B2C1", 100)
	user.LastVerifiedAt = nil
	err := suite.repo.Upsert(ctx, user)
	assert.NoError(suite.T(), err)

	err = suite.repo.TouchVerified(ctx, "04A3B2C1")
	assert.NoError(suite.T(), err)

	found, err := suite.repo.FindByCardUID(ctx, "04A3B2C1")
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), found.LastVerifiedAt)
}

// TestCachedUserRepository_GetAll 测试分页查询
func (suite *CachedUserRepositoryTestSuite) TestCachedUserRepository_GetAll() {
	ctx := context.Background()

	for _, uid := range []string{"04000001", "04000002", "04000003"} {
		err := suite.repo.Upsert(ctx, CreateTestCachedUser(uid, 10))
		assert.NoError(suite.T(), err)
	}

	pagination := NewPagination(1, 2)
	users, err := suite.repo.GetAll(ctx, pagination)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), users, 2)
	assert.Equal(suite.T(), int64(3), pagination.Total)
}

// TestCachedUser_IsActive 测试状态判断
func (suite *CachedUserRepositoryTestSuite) TestCachedUser_IsActive() {
	user := &models.CachedUser{Status: "active"}
	assert.True(suite.T(), user.IsActive())

	user.Status = "frozen"
	assert.False(suite.T(), user.IsActive())
}

func TestCachedUserRepositorySuite(t *testing.T) {
	suite.Run(t, new(CachedUserRepositoryTestSuite))
}
