package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/qs3c/insight_go_server/internal/model"
	"github.com/qs3c/insight_go_server/internal/repository"
)

// MinEntryLength 短于该长度（字符数）的条目被丢弃
const MinEntryLength = 5

var lineBreak = regexp.MustCompile(`\r\n|\n|\r`)

// Normalize 按行拆分、去空白、丢弃过短条目，并按小写去重（保留首次出现的顺序）
func Normalize(raw string) []string {
	lines := lineBreak.Split(raw, -1)
	entries := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))

	for _, line := range lines {
		entry := strings.TrimSpace(line)
		if utf8.RuneCountInString(entry) < MinEntryLength {
			continue
		}
		key := strings.ToLower(entry)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, entry)
	}

	return entries
}

// Fingerprint 规范化条目集合的内容指纹，与顺序和大小写无关
func Fingerprint(entries []string) string {
	lowered := make([]string, len(entries))
	for i, e := range entries {
		lowered[i] = strings.ToLower(e)
	}
	sort.Strings(lowered)

	sum := sha256.Sum256([]byte(strings.Join(lowered, "\n")))
	return hex.EncodeToString(sum[:])
}

// DedupIndex 将指纹映射到用户已完成的分析
type DedupIndex struct {
	jobRepo *repository.JobRepository
}

func NewDedupIndex(jobRepo *repository.JobRepository) *DedupIndex {
	return &DedupIndex{jobRepo: jobRepo}
}

// Lookup 返回用户最近一次相同指纹且已完成的任务，没有则返回 nil
func (d *DedupIndex) Lookup(userID int64, fingerprint string) (*model.AnalysisJob, error) {
	job, err := d.jobRepo.FindCompletedByFingerprint(userID, fingerprint)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}
