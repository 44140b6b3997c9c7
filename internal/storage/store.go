package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parser2gis/internal/ctxkeys"
	"parser2gis/internal/logger"
	"parser2gis/internal/writer"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Record 一条抓取到的目录记录
type Record struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"size:36;index"`
	FirmID    string `gorm:"size:128;index"`
	Name      string
	Document  string `gorm:"type:text"`
	CreatedAt time.Time
}

// Store sqlite 记录存储，同时作为文档输出端
type Store struct {
	db    *gorm.DB
	ctx   context.Context
	count int
	log   logger.Logger
}

// Open 打开数据库并迁移表结构，runID 标记本次写入的记录
func Open(dsn, prefix, runID string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l).LogMode(gormlogger.Warn),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 内存库每个连接都是独立的数据库
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{
		db:  db,
		ctx: ctxkeys.WithRunID(context.Background(), runID),
		log: l.With("run", runID),
	}, nil
}

// Write 保存文档的第一条记录，未通过校验的文档被跳过
func (s *Store) Write(doc json.RawMessage) error {
	item, err := writer.Check(doc)
	if err != nil {
		s.log.Warn("跳过无效文档", "error", err)
		return nil
	}
	rec := Record{
		RunID:    ctxkeys.RunID(s.ctx),
		FirmID:   item.Get("id").String(),
		Name:     writer.ItemName(item),
		Document: item.Raw,
	}
	if err := s.db.WithContext(s.ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	s.count++
	return nil
}

// Count 本次写入的记录数
func (s *Store) Count() int { return s.count }

// Records 按写入顺序返回某次运行的记录
func (s *Store) Records(ctx context.Context, runID string) ([]Record, error) {
	var out []Record
	err := s.db.WithContext(ctxkeys.WithRunID(ctx, runID)).
		Where("run_id = ?", runID).
		Order("id").
		Find(&out).Error
	return out, err
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
