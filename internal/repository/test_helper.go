package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/recycle-kiosk/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 为测试套件设置测试数据库
func SetupTestDB() *gorm.DB {
	// 使用内存数据库进行测试（更快，不需要文件系统，在所有环境中都能工作）
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.CachedUser{},
		&models.PendingTransaction{},
		&models.SyncLog{},
		&models.Redemption{},
		&models.HardwareLog{},
	)
	if err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// CreateTestCachedUser 创建测试缓存用户
func CreateTestCachedUser(cardUID string, points int64) *models.CachedUser {
	now := time.Now()
	return &models.CachedUser{
		CardUID:        cardUID,
		UserID:         "user_" + cardUID,
		Name:           "测试用户",
		Points:         points,
		Status:         "active",
		LastVerifiedAt: &now,
	}
}

// CreateTestTransaction 创建测试交易记录
func CreateTestTransaction(cardUID string, paperCount int, offline bool) *models.PendingTransaction {
	status := models.TxStatusSynced
	if offline {
		status = models.TxStatusPending
	}
	return &models.PendingTransaction{
		TransactionID:  uuid.NewString(),
		CardUID:        cardUID,
		UserID:         "user_" + cardUID,
		PaperCount:     paperCount,
		PointsAwarded:  int64(paperCount),
		Status:         status,
		CreatedOffline: offline,
		OccurredAt:     time.Now(),
	}
}

// CreateTestRedemption 创建测试兑换任务
func CreateTestRedemption(redemptionID, rewardName string) *models.Redemption {
	return &models.Redemption{
		RedemptionID: redemptionID,
		CardUID:      "04A3B2C1",
		UserID:       "user_04A3B2C1",
		RewardName:   rewardName,
		Cycles:       models.CyclesForReward(rewardName),
		Source:       models.RedemptionSourcePoll,
		Status:       models.RedemptionStatusPending,
	}
}
