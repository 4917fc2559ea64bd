package service

import "group-voting-backend/models"

// RecomputePercentages 重新计算每个选项的百分比，返回新切片。
// 顺序、ID和票数保持不变；totalVotes为0时所有百分比为0。
func RecomputePercentages(options []models.PollOption, totalVotes int64) []models.PollOption {
	result := make([]models.PollOption, len(options))
	for i, opt := range options {
		opt.Percentage = percentage(opt.Votes, totalVotes)
		result[i] = opt
	}
	return result
}

// percentage 四舍五入（half-up）到整数，整数运算避免浮点误差
func percentage(votes, total int64) int {
	if total <= 0 || votes <= 0 {
		return 0
	}
	return int((votes*200 + total) / (2 * total))
}

// sumVotes 汇总所有选项票数
func sumVotes(options []models.PollOption) int64 {
	var total int64
	for _, opt := range options {
		total += opt.Votes
	}
	return total
}

// participationRate 参与率 = 总票数 / max(1, 合格投票人数) * 100，四舍五入
func participationRate(totalVotes, eligibleVoters int64) int {
	if eligibleVoters < 1 {
		eligibleVoters = 1
	}
	return percentage(totalVotes, eligibleVoters)
}
