package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/recycle-kiosk/internal/models"
	"gorm.io/gorm"
)

// RedemptionRepositoryTestSuite 兑换任务仓储测试套件
type RedemptionRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo RedemptionRepository
}

func (suite *RedemptionRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.repo = NewRedemptionRepository(suite.db)
}

func (suite *RedemptionRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

// TestRedemptionRepository_Create 测试创建兑换任务
func (suite *RedemptionRepositoryTestSuite) TestRedemptionRepository_Create() {
	ctx := context.Background()

	redemption := CreateTestRedemption("rdm_001", "5 sheet")
	err := suite.repo.Create(ctx, redemption)
	assert.NoError(suite.T(), err)
	assert.NotZero(suite.T(), redemption.ID)

	found, err := suite.repo.FindByRedemptionID(ctx, "rdm_001")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 5, found.Cycles)
	assert.Equal(suite.T(), models.RedemptionStatusPending, found.Status)

	// 重复的兑换ID应违反唯一索引
	dup := CreateTestRedemption("rdm_001", "5 sheet")
	err = suite.repo.Create(ctx, dup)
	assert.Error(suite.T(), err)
}

// TestRedemptionRepository_MarkDispensed 测试标记已出纸
func (suite *RedemptionRepositoryTestSuite) TestRedemptionRepository_MarkDispensed() {
	ctx := context.Background()

	redemption := CreateTestRedemption("rdm_002", "1 sheet")
	assert.NoError(suite.T(), suite.repo.Create(ctx, redemption))

	err := suite.repo.MarkDispensed(ctx, "rdm_002")
	assert.NoError(suite.T(), err)

	found, err := suite.repo.FindByRedemptionID(ctx, "rdm_002")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.RedemptionStatusDispensed, found.Status)
	assert.NotNil(suite.T(), found.DispensedAt)
}

// TestRedemptionRepository_MarkFailed 测试标记失败
func (suite *RedemptionRepositoryTestSuite) TestRedemptionRepository_MarkFailed() {
	ctx := context.Background()

	redemption := CreateTestRedemption("rdm_003", "1 sheet")
	assert.NoError(suite.T(), suite.repo.Create(ctx, redemption))

	err := suite.repo.MarkFailed(ctx, "rdm_003", "舵机故障")
	assert.NoError(suite.T(), err)

	found, err := suite.repo.FindByRedemptionID(ctx, "rdm_003")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.RedemptionStatusFailed, found.Status)
	assert.Equal(suite.T(), "舵机故障", found.Error)
}

// TestCyclesForReward 测试奖品循环次数推算
func (suite *RedemptionRepositoryTestSuite) TestCyclesForReward() {
	assert.Equal(suite.T(), 5, models.CyclesForReward("5 sheet"))
	assert.Equal(suite.T(), 5, models.CyclesForReward("  5 Sheet Pack "))
	assert.Equal(suite.T(), 1, models.CyclesForReward("1 sheet"))
	assert.Equal(suite.T(), 1, models.CyclesForReward(""))
	assert.Equal(suite.T(), 1, models.CyclesForReward("unknown reward"))
}

// TestRedemptionRepository_GetRecent 测试分页查询
func (suite *RedemptionRepositoryTestSuite) TestRedemptionRepository_GetRecent() {
	ctx := context.Background()

	for _, id := range []string{"rdm_a", "rdm_b", "rdm_c"} {
		assert.NoError(suite.T(), suite.repo.Create(ctx, CreateTestRedemption(id, "1 sheet")))
	}

	pagination := NewPagination(1, 2)
	redemptions, err := suite.repo.GetRecent(ctx, pagination)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), redemptions, 2)
	assert.Equal(suite.T(), int64(3), pagination.Total)
}

func TestRedemptionRepositorySuite(t *testing.T) {
	suite.Run(t, new(RedemptionRepositoryTestSuite))
}
