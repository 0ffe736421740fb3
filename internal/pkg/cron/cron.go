package cron

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qs3c/insight_go_server/internal/service"
)

// WatchdogInterval 超时巡检间隔
const WatchdogInterval = 30 * time.Second

// PendingReports 查询本地报告是否仍在等待补传
type PendingReports interface {
	HasLocalReport(name string) (bool, error)
}

type Service struct {
	analysisService *service.AnalysisService
	pending         PendingReports
	reportDir       string
	expireHours     int
	stopChan        chan struct{}
}

// NewService pending 为 nil 时不保留未补传的报告
func NewService(
	analysisService *service.AnalysisService,
	pending PendingReports,
	reportDir string,
	expireHours int,
) *Service {
	return &Service{
		analysisService: analysisService,
		pending:         pending,
		reportDir:       reportDir,
		expireHours:     expireHours,
		stopChan:        make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runWatchdog()
	go s.runCleanup()
	log.Println("Cron service started (job watchdog + report cleanup)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runWatchdog 周期性地让排队超时和 worker 丢失的任务进入终态
func (s *Service) runWatchdog() {
	ticker := time.NewTicker(WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.SweepNow(time.Now().UTC())
		}
	}
}

// SweepNow 执行一次超时巡检，返回超时和回收的任务数
func (s *Service) SweepNow(now time.Time) (expired, reaped int) {
	expired, err := s.analysisService.ExpireStale(now)
	if err != nil {
		log.Printf("Watchdog: failed to expire stale jobs: %v", err)
	}

	reaped, err = s.analysisService.ReapAbandoned(now)
	if err != nil {
		log.Printf("Watchdog: failed to reap abandoned jobs: %v", err)
	}

	if expired+reaped > 0 {
		log.Printf("Watchdog: expired=%d, reaped=%d", expired, reaped)
	}
	return expired, reaped
}

// runCleanup 每小时执行一次报告清理
func (s *Service) runCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if n := s.CleanupReports(); n > 0 {
				log.Printf("Cleanup: removed %d local reports", n)
			}
		}
	}
}

// CleanupReports 删除超过保留时间且不再等待补传的本地报告文件
func (s *Service) CleanupReports() int {
	if s.reportDir == "" {
		return 0
	}

	expireHours := s.expireHours
	if expireHours <= 0 {
		expireHours = 1
	}
	expireDuration := time.Duration(expireHours) * time.Hour

	entries, err := os.ReadDir(s.reportDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Cleanup reports: failed to read dir %s: %v", s.reportDir, err)
		}
		return 0
	}

	cleaned := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if time.Since(info.ModTime()) <= expireDuration || s.awaitingUpload(entry.Name()) {
			continue
		}

		path := filepath.Join(s.reportDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("Cleanup reports: failed to remove %s: %v", path, err)
			continue
		}
		cleaned++
	}
	return cleaned
}

// awaitingUpload 报告仍未补传到 OSS 时保留，由重传器上传后删除。
// 查询失败时同样保留，下一轮再判断。
func (s *Service) awaitingUpload(name string) bool {
	if s.pending == nil {
		return false
	}
	pending, err := s.pending.HasLocalReport(name)
	if err != nil {
		log.Printf("Cleanup reports: failed to check %s: %v", name, err)
		return true
	}
	return pending
}
