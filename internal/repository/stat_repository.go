// Package repository 提供了数据访问层的实现。
package repository

import (
	"errors"

	"mind-tutor-go/internal/model"

	"gorm.io/gorm"
)

// StatRepository 定义了用户学习活动统计的持久化操作。
type StatRepository interface {
	// IncrMessages 将某用户的消息计数加 n，行不存在时创建。
	IncrMessages(userID uint, n int64) error
	// RecordQuiz 累加一次测验的得分与题数。
	RecordQuiz(userID uint, score, total int64) error
	// Find 返回某用户的统计行，不存在时返回全零的统计。
	Find(userID uint) (*model.UserActivityStat, error)
}

type statRepository struct {
	db *gorm.DB
}

// NewStatRepository 创建一个新的 StatRepository 实例。
func NewStatRepository(db *gorm.DB) StatRepository {
	return &statRepository{db: db}
}

// ensureRow 保证统计行存在后返回它。
func (r *statRepository) ensureRow(userID uint) (*model.UserActivityStat, error) {
	var stat model.UserActivityStat
	err := r.db.Where("user_id = ?", userID).First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stat = model.UserActivityStat{UserID: userID}
		if err := r.db.Create(&stat).Error; err != nil {
			return nil, err
		}
		return &stat, nil
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// IncrMessages 原子地累加消息计数。
func (r *statRepository) IncrMessages(userID uint, n int64) error {
	if _, err := r.ensureRow(userID); err != nil {
		return err
	}
	return r.db.Model(&model.UserActivityStat{}).
		Where("user_id = ?", userID).
		UpdateColumn("messages_sent", gorm.Expr("messages_sent + ?", n)).Error
}

// RecordQuiz 累加一次测验的完成次数、得分与题数。
func (r *statRepository) RecordQuiz(userID uint, score, total int64) error {
	if _, err := r.ensureRow(userID); err != nil {
		return err
	}
	return r.db.Model(&model.UserActivityStat{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"quizzes_taken":    gorm.Expr("quizzes_taken + 1"),
			"quiz_score_sum":   gorm.Expr("quiz_score_sum + ?", score),
			"quiz_score_count": gorm.Expr("quiz_score_count + ?", total),
		}).Error
}

// Find 返回统计行；没有活动记录的用户得到全零统计。
func (r *statRepository) Find(userID uint) (*model.UserActivityStat, error) {
	var stat model.UserActivityStat
	err := r.db.Where("user_id = ?", userID).First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.UserActivityStat{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}
