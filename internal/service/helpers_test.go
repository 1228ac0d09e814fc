package service

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shepherd/internal/db"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

// setupServiceTestDB 打开一个独立的内存数据库并完成迁移；单连接避免共享缓存的表锁。
func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service-%d-%d?mode=memory&cache=shared", time.Now().UnixNano(), testDBSeq.Add(1))
	gdb, err := db.Open(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(db.Models()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return gdb
}

// setupFileTestDB 使用临时文件数据库，允许多个连接并发执行事务。
func setupFileTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "concurrency.db")
	gdb, err := db.Open(path+"?_busy_timeout=10000&_txlock=immediate", nil)
	if err != nil {
		t.Fatalf("failed to open file database: %v", err)
	}
	if err := gdb.AutoMigrate(db.Models()...); err != nil {
		t.Fatalf("failed to migrate file database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func createTestMember(t *testing.T, gdb *gorm.DB, firstName string) db.Member {
	t.Helper()
	member := db.Member{
		AuthUserID: uuid.NewString(),
		FirstName:  firstName,
		Email:      fmt.Sprintf("%s-%d@example.com", firstName, testDBSeq.Add(1)),
	}
	if err := gdb.Create(&member).Error; err != nil {
		t.Fatalf("failed to create member: %v", err)
	}
	return member
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

type fakeHTTPClient struct {
	handler func(*http.Request) (*http.Response, error)
}

func (f fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if f.handler == nil {
		return nil, errors.New("no handler configured")
	}
	return f.handler(req)
}
