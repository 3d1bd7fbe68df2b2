package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/LJTian/NewsPulse/internal/processor"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const upsertBatchSize = 200

// StoreError 表示存储层读写失败
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ArticleRecord 对应 articles 表；Collection 区分各数据源，(collection, url) 唯一
type ArticleRecord struct {
	ID             string                      `gorm:"primaryKey;size:40" json:"id"`
	Collection     string                      `gorm:"size:64;uniqueIndex:idx_collection_url,priority:1;index" json:"collection"`
	URL            string                      `gorm:"type:text;uniqueIndex:idx_collection_url,priority:2" json:"url"`
	Title          string                      `gorm:"size:512" json:"title"`
	SourceLabel    string                      `gorm:"size:128;index" json:"source"`
	PublishedAt    time.Time                   `gorm:"index" json:"publicationDate"`
	SentimentScore int                         `gorm:"index" json:"sentimentScore"`
	Keywords       datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"keywords"`
	ExtraData      datatypes.JSONMap           `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ArticleRecord) TableName() string {
	return "articles"
}

type Store struct {
	DB *gorm.DB
}

func NewStore(dsn string) (*Store, error) {
	return Open(postgres.Open(dsn))
}

// Open 使用任意 gorm 方言建立存储并迁移表结构，生产环境为 PostgreSQL
func Open(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, &StoreError{Op: "connect", Err: err}
	}

	if err := db.AutoMigrate(&ArticleRecord{}); err != nil {
		return nil, &StoreError{Op: "migrate", Err: err}
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// recordID 以 collection + url 生成稳定主键，重复写入同一 URL 只会命中同一行
func recordID(collection, url string) string {
	h := sha1.New()
	h.Write([]byte(collection))
	h.Write([]byte{0})
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

func toRecord(collection string, a processor.Article) ArticleRecord {
	return ArticleRecord{
		ID:             recordID(collection, a.URL),
		Collection:     collection,
		URL:            a.URL,
		Title:          processor.ClampText(a.Title, processor.MaxTitleRunes),
		SourceLabel:    processor.ClampText(a.SourceLabel, processor.MaxLabelRunes),
		PublishedAt:    a.PublishedAt,
		SentimentScore: a.SentimentScore,
		Keywords:       datatypes.JSONSlice[string](append([]string(nil), a.Keywords...)),
		ExtraData:      datatypes.JSONMap(a.Extra),
	}
}

func fromRecord(r ArticleRecord) processor.Article {
	return processor.Article{
		SourceLabel:    r.SourceLabel,
		Title:          r.Title,
		URL:            r.URL,
		PublishedAt:    r.PublishedAt,
		SentimentScore: r.SentimentScore,
		Keywords:       []string(r.Keywords),
		Extra:          map[string]any(r.ExtraData),
	}
}

func fromRecords(list []ArticleRecord) []processor.Article {
	out := make([]processor.Article, 0, len(list))
	for _, r := range list {
		out = append(out, fromRecord(r))
	}
	return out
}

// FindAll 返回某个数据源下已存储的全部文章
func (s *Store) FindAll(ctx context.Context, collection string) ([]processor.Article, error) {
	var list []ArticleRecord
	if err := s.DB.WithContext(ctx).Where("collection = ?", collection).Find(&list).Error; err != nil {
		return nil, &StoreError{Op: "find", Collection: collection, Err: err}
	}
	return fromRecords(list), nil
}

// UpsertMany 以 URL 为幂等键批量写入：不存在则插入，已存在则更新可变字段。
// 整批在一个事务内提交，对调用方而言是一次原子写入。
func (s *Store) UpsertMany(ctx context.Context, collection string, articles []processor.Article) error {
	if len(articles) == 0 {
		return nil
	}
	records := make([]ArticleRecord, 0, len(articles))
	for _, a := range articles {
		records = append(records, toRecord(collection, a))
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "source_label", "published_at", "sentiment_score", "keywords", "extra_data", "updated_at",
			}),
		}).CreateInBatches(&records, upsertBatchSize).Error
	})
	if err != nil {
		return &StoreError{Op: "upsert", Collection: collection, Err: err}
	}
	return nil
}

// ListRecent 按发布时间倒序返回最新的文章
func (s *Store) ListRecent(ctx context.Context, collection string, limit int) ([]processor.Article, error) {
	var list []ArticleRecord
	err := s.DB.WithContext(ctx).
		Where("collection = ?", collection).
		Order("published_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, &StoreError{Op: "list", Collection: collection, Err: err}
	}
	return fromRecords(list), nil
}

// FindSince 返回发布时间不早于 since 的文章，用于趋势统计
func (s *Store) FindSince(ctx context.Context, collection string, since time.Time) ([]processor.Article, error) {
	var list []ArticleRecord
	err := s.DB.WithContext(ctx).
		Where("collection = ? AND published_at >= ?", collection, since).
		Find(&list).Error
	if err != nil {
		return nil, &StoreError{Op: "find_since", Collection: collection, Err: err}
	}
	return fromRecords(list), nil
}
