package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

const defaultDatabaseURL = "shepherd.db"

// Models 返回需要自动迁移的全部模型。
func Models() []interface{} {
	return []interface{}{
		&User{},
		&SystemSetting{},
		&Member{},
		&DailyActivityLog{},
		&EngagementStreak{},
		&Achievement{},
		&MemberAchievement{},
		&VolunteerShift{},
		&VolunteerSignup{},
		&Lead{},
		&Devotional{},
	}
}

// Open 根据 databaseURL 选择驱动：postgres:// 走托管 Postgres，mysql:// 走 MySQL，其余视为 SQLite 文件路径。
func Open(databaseURL string, gormLogger logger.Interface) (*gorm.DB, error) {
	url := strings.TrimSpace(databaseURL)
	if url == "" {
		url = defaultDatabaseURL
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		dialector = postgres.Open(url)
	case strings.HasPrefix(url, "mysql://"):
		dialector = mysql.Open(strings.TrimPrefix(url, "mysql://"))
	default:
		if err := ensureParentDir(url); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(url)
	}

	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if sqlDB, err := gdb.DB(); err == nil && dialector.Name() != "sqlite" {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	return gdb, nil
}

// Init 初始化数据库连接并执行自动迁移。
func Init(databaseURL string, gormLogger logger.Interface) error {
	gdb, err := Open(databaseURL, gormLogger)
	if err != nil {
		return err
	}

	if err := gdb.AutoMigrate(Models()...); err != nil {
		return err
	}

	DB = gdb
	return nil
}

// NewGormLogger 将应用日志级别映射到 GORM 日志级别，debug 时输出 SQL。
func NewGormLogger(writer logger.Writer, level string) logger.Interface {
	return logger.New(writer, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  toGormLogLevel(level),
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func toGormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, "file:") {
		return nil
	}

	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
