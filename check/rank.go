package check

import (
	"sort"

	"github.com/samber/lo"
)

// Rank 筛出纯净IP并按风险排序。
// 规则：只保留 IsPure 且风险低于阈值的；风险升序，
// 同风险时挂的节点多的优先；最后截断到maxCount。
func Rank(reports []Report, riskThreshold, maxCount int) []Report {
	if riskThreshold <= 0 {
		riskThreshold = 50
	}

	pure := lo.Filter(reports, func(r Report, _ int) bool {
		return r.Result.IsPure && r.Result.RiskScore < riskThreshold
	})

	sort.SliceStable(pure, func(i, j int) bool {
		if pure[i].Result.RiskScore != pure[j].Result.RiskScore {
			return pure[i].Result.RiskScore < pure[j].Result.RiskScore
		}
		return len(pure[i].Candidate.Nodes) > len(pure[j].Candidate.Nodes)
	})

	if maxCount > 0 && len(pure) > maxCount {
		pure = pure[:maxCount]
	}
	return pure
}
