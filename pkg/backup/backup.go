package backup

import (
	"SafeBuddyGuardian/pkg/config"
	"SafeBuddyGuardian/pkg/logger"
	"SafeBuddyGuardian/pkg/scheduler"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StartBackupScheduler 把数据库备份挂到 cron 上
func StartBackupScheduler(cr *scheduler.Cron) error {
	_, err := cr.AddWithCtx(config.GlobalConfig.BackupSchedule, func(ctx context.Context) {
		if err := ExecuteBackup(); err != nil {
			logger.Warn("backup failed", zap.Error(err))
		} else {
			logger.Info("backup completed")
		}
	})
	return err
}

// ExecuteBackup 根据配置执行数据库备份
func ExecuteBackup() error {
	stamp := time.Now().Format("20060102_150405")
	switch config.GlobalConfig.DBDriver {
	case "", "sqlite":
		dst := filepath.Join(config.GlobalConfig.BackupPath, fmt.Sprintf("safebuddy_backup_%s.db", stamp))
		return backupSQLite(config.GlobalConfig.DSN, dst)
	case "mysql":
		dst := filepath.Join(config.GlobalConfig.BackupPath, fmt.Sprintf("safebuddy_backup_%s.sql", stamp))
		return backupMySQL(config.GlobalConfig.DSN, dst)
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", config.GlobalConfig.DBDriver)
	}
}

func ensureDir(dst string) error {
	dir := filepath.Dir(dst)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, os.ModePerm)
	}
	return nil
}

// backupSQLite 文件级拷贝备份
func backupSQLite(src, dst string) error {
	if err := ensureDir(dst); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	src = strings.TrimPrefix(src, "file:")

	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening source file: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("error copying data: %w", err)
	}
	return nil
}

// backupMySQL 使用 mysqldump 执行备份
func backupMySQL(dsn, dst string) error {
	if err := ensureDir(dst); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}
	defer out.Close()

	cmd := exec.Command("mysqldump", dsn)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to backup MySQL database: %w", err)
	}
	return nil
}
