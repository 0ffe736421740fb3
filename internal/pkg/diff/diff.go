// Package diff compares a run's opportunity snapshots with the user's earlier
// snapshots and classifies what changed.
package diff

import (
	"fmt"
	"math"
	"strings"

	"github.com/qs3c/insight_go_server/internal/model"
)

const (
	// DemandSurgeThreshold 需求分数上涨百分比阈值
	DemandSurgeThreshold = 20.0
	// MentionsSpikeThreshold 提及次数上涨百分比阈值
	MentionsSpikeThreshold = 25.0
	// HistoryLimit 参与对比的历史快照数量上限
	HistoryLimit = 50

	// pctPrecision 百分比保留的小数精度，消除浮点误差
	pctPrecision = 1e6
)

// Key 跨次分析匹配用的标题键
func Key(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Compute 对比 current 与 previous（按时间倒序），按 current 的顺序输出信号。
// 同一个机会可以同时产生多个信号。
func Compute(current, previous []model.OpportunitySnapshot) []model.ChangeSignal {
	history := make(map[string]model.OpportunitySnapshot, len(previous))
	for _, p := range previous {
		k := Key(p.Title)
		if _, ok := history[k]; ok {
			continue
		}
		history[k] = p
	}

	var signals []model.ChangeSignal
	for _, cur := range current {
		prev, ok := history[Key(cur.Title)]
		if !ok {
			signals = append(signals, model.ChangeSignal{
				Type:            model.AlertNewOpportunity,
				Title:           cur.Title,
				Message:         fmt.Sprintf("New opportunity detected: %s", cur.Title),
				CurrentPriority: cur.Priority,
			})
			continue
		}

		if pct, ok := changePct(prev.DemandScore, cur.DemandScore); ok && pct >= DemandSurgeThreshold {
			signals = append(signals, model.ChangeSignal{
				Type:            model.AlertDemandSurge,
				Title:           cur.Title,
				Message:         fmt.Sprintf("Demand for %q rose %.0f%% (%.1f → %.1f)", cur.Title, pct, prev.DemandScore, cur.DemandScore),
				DemandChangePct: pct,
			})
		}

		curRank, curOK := model.PriorityRank(cur.Priority)
		prevRank, prevOK := model.PriorityRank(prev.Priority)
		if curOK && prevOK && curRank < prevRank {
			signals = append(signals, model.ChangeSignal{
				Type:             model.AlertPriorityEscalation,
				Title:            cur.Title,
				Message:          fmt.Sprintf("%q escalated from %s to %s", cur.Title, prev.Priority, cur.Priority),
				PreviousPriority: prev.Priority,
				CurrentPriority:  cur.Priority,
			})
		}

		if pct, ok := changePct(float64(prev.MentionsEstimate), float64(cur.MentionsEstimate)); ok && pct >= MentionsSpikeThreshold {
			signals = append(signals, model.ChangeSignal{
				Type:              model.AlertMentionsSpike,
				Title:             cur.Title,
				Message:           fmt.Sprintf("Mentions of %q up %.0f%% (%d → %d)", cur.Title, pct, prev.MentionsEstimate, cur.MentionsEstimate),
				MentionsChangePct: pct,
			})
		}
	}

	return signals
}

// changePct 计算百分比变化，previous 为 0 时跳过。
// 结果按 pctPrecision 取整，0.5 → 0.6 得到 20 而不是 19.999...
func changePct(previous, current float64) (float64, bool) {
	if previous == 0 {
		return 0, false
	}
	pct := (current - previous) / previous * 100
	return math.Round(pct*pctPrecision) / pctPrecision, true
}
