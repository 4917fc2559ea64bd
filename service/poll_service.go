package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"group-voting-backend/models"
	"group-voting-backend/repository"

	"github.com/google/uuid"
)

var (
	// 业务错误定义
	ErrPollNotFound     = errors.New("poll not found")
	ErrOptionNotFound   = errors.New("option not found")
	ErrPollTerminal     = errors.New("poll already closed or cancelled")
	ErrInvalidDateRange = errors.New("start date is after end date")
)

// DefaultCreator 会话上下文未提供用户名时的创建者
const DefaultCreator = "Group Admin"

// WebSocket消息类型
const (
	MessagePollUpdated = "poll_updated"
	MessagePollDeleted = "poll_deleted"
)

// Notifier 接收投票变更通知，例如WebSocket Hub
type Notifier interface {
	BroadcastToPoll(pollID string, message *models.WebSocketMessage)
}

// PollService 投票引擎接口
type PollService interface {
	// 投票管理
	Load(ctx context.Context) error
	CreatePoll(ctx context.Context, input PollInput) (*models.Poll, error)
	GetPoll(ctx context.Context, id string) (*models.Poll, error)
	ListPolls(ctx context.Context, filter PollFilter) ([]*models.Poll, error)
	EditPoll(ctx context.Context, id string, patch PollPatch) (*models.Poll, error)
	ClosePoll(ctx context.Context, id string) (*models.Poll, error)
	CancelPoll(ctx context.Context, id string) (*models.Poll, error)
	DeletePoll(ctx context.Context, id string) error

	// 投票操作
	CastVote(ctx context.Context, pollID, optionID string) (*models.Poll, error)
	Stats(ctx context.Context) (*PollStats, error)
}

// PollInput 创建投票所需的字段
type PollInput struct {
	Title          string
	Description    string
	Type           models.PollType
	OptionTexts    []string
	GroupName      string
	CreatedBy      string
	StartDate      string
	EndDate        string
	Visibility     models.Visibility
	VisibleRoles   []string
	EligibleVoters int64
}

// PollPatch 编辑投票的字段级补丁，nil表示不修改
type PollPatch struct {
	Title          *string
	Description    *string
	Type           *models.PollType
	Options        *[]OptionPatch
	GroupName      *string
	StartDate      *string
	EndDate        *string
	Visibility     *models.Visibility
	VisibleRoles   *[]string
	EligibleVoters *int64
}

// OptionPatch 编辑时提交的选项，ID为空表示新增
type OptionPatch struct {
	ID   string
	Text string
}

// PollFilter 列表筛选条件
type PollFilter struct {
	Search  string            // 标题或描述，不区分大小写
	Status  models.PollStatus // 空或"all"表示不过滤
	Group   string            // 空或"all"表示不过滤
	Role    string            // 查看者角色，受限投票按角色过滤
	ShowAll bool              // 管理员视图，忽略可见性
}

// PollStats 面板顶部的汇总数据
type PollStats struct {
	TotalPolls        int   `json:"totalPolls"`
	ActivePolls       int   `json:"activePolls"`
	CompletedPolls    int   `json:"completedPolls"`
	TotalVotes        int64 `json:"totalVotes"`
	EligibleVoters    int64 `json:"eligibleVoters"`
	ParticipationRate int   `json:"participationRate"`
}

// Option 配置PollServiceImpl
type Option func(*PollServiceImpl)

// WithClock 替换当前时间来源，便于测试
func WithClock(now func() time.Time) Option {
	return func(s *PollServiceImpl) { s.now = now }
}

// WithDateRangeCheck 创建和编辑时拒绝开始日期晚于结束日期的投票
func WithDateRangeCheck() Option {
	return func(s *PollServiceImpl) { s.checkRange = true }
}

// WithIDGenerator 替换投票ID生成方式
func WithIDGenerator(gen func() string) Option {
	return func(s *PollServiceImpl) { s.newID = gen }
}

// PollServiceImpl 投票引擎实现，集合常驻内存，每次变更后整体写回存储
type PollServiceImpl struct {
	mu       sync.Mutex
	polls    []*models.Poll // 最新创建的在前
	repo     repository.PollRepository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	checkRange bool
}

// NewPollService 创建投票引擎
func NewPollService(repo repository.PollRepository, notifier Notifier, logger *slog.Logger, opts ...Option) *PollServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PollServiceImpl{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return "poll-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load 启动时读取完整集合；数据缺失或损坏时回退为空集合
func (s *PollServiceImpl) Load(ctx context.Context) error {
	polls, err := s.repo.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls = nil
	if err != nil {
		s.logger.Warn("加载投票数据失败，使用空集合", "error", err)
		return nil
	}
	for i := range polls {
		p := polls[i]
		normalize(&p)
		// 存储中的派生字段不可信，按选项票数重算
		p.TotalVotes = sumVotes(p.Options)
		p.Options = RecomputePercentages(p.Options, p.TotalVotes)
		s.polls = append(s.polls, &p)
	}
	s.logger.Info("投票数据加载完成", "count", len(s.polls))
	return nil
}

// CreatePoll 创建投票，新投票插入集合最前面
func (s *PollServiceImpl) CreatePoll(ctx context.Context, input PollInput) (*models.Poll, error) {
	if s.checkRange && !ValidDateRange(input.StartDate, input.EndDate) {
		return nil, ErrInvalidDateRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	options := make([]models.PollOption, len(input.OptionTexts))
	for i, text := range input.OptionTexts {
		options[i] = models.PollOption{ID: optionID(i + 1), Text: text}
	}

	creator := strings.TrimSpace(input.CreatedBy)
	if creator == "" {
		creator = DefaultCreator
	}

	poll := &models.Poll{
		ID:             s.newID(),
		Title:          strings.TrimSpace(input.Title),
		Description:    strings.TrimSpace(input.Description),
		Type:           input.Type,
		Options:        RecomputePercentages(options, 0),
		NextOptionSeq:  len(options),
		GroupName:      input.GroupName,
		CreatedBy:      creator,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		Status:         DeriveStatus(input.StartDate, input.EndDate, now),
		TotalVotes:     0,
		Visibility:     input.Visibility,
		VisibleRoles:   input.VisibleRoles,
		EligibleVoters: input.EligibleVoters,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	normalize(poll)

	s.polls = append([]*models.Poll{poll}, s.polls...)
	s.persist(ctx)
	s.logger.Info("投票已创建", "poll_id", poll.ID, "status", poll.Status, "options", len(poll.Options))

	out := poll.Clone()
	s.notify(MessagePollUpdated, out)
	return out, nil
}

// GetPoll 获取单个投票的副本，状态按当前时间惰性刷新
func (s *PollServiceImpl) GetPoll(ctx context.Context, id string) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, poll := s.find(id)
	if poll == nil {
		return nil, ErrPollNotFound
	}
	return s.view(poll), nil
}

// ListPolls 按筛选条件返回投票副本，保持最新在前的顺序
func (s *PollServiceImpl) ListPolls(ctx context.Context, filter PollFilter) ([]*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]*models.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		poll := s.view(p)
		if search != "" &&
			!strings.Contains(strings.ToLower(poll.Title), search) &&
			!strings.Contains(strings.ToLower(poll.Description), search) {
			continue
		}
		if filter.Status != "" && filter.Status != "all" && poll.Status != filter.Status {
			continue
		}
		if filter.Group != "" && filter.Group != "all" && poll.GroupName != filter.Group {
			continue
		}
		if !filter.ShowAll && !poll.VisibleTo(filter.Role) {
			continue
		}
		result = append(result, poll)
	}
	return result, nil
}

// EditPoll 应用字段级补丁，然后重算票数、百分比，非终态时重新推导状态
func (s *PollServiceImpl) EditPoll(ctx context.Context, id string, patch PollPatch) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, poll := s.find(id)
	if poll == nil {
		return nil, ErrPollNotFound
	}

	if s.checkRange {
		start, end := poll.StartDate, poll.EndDate
		if patch.StartDate != nil {
			start = *patch.StartDate
		}
		if patch.EndDate != nil {
			end = *patch.EndDate
		}
		if !ValidDateRange(start, end) {
			return nil, ErrInvalidDateRange
		}
	}

	if patch.Title != nil {
		poll.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		poll.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Type != nil {
		poll.Type = *patch.Type
	}
	if patch.GroupName != nil {
		poll.GroupName = *patch.GroupName
	}
	if patch.StartDate != nil {
		poll.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		poll.EndDate = *patch.EndDate
	}
	if patch.Visibility != nil {
		poll.Visibility = *patch.Visibility
	}
	if patch.VisibleRoles != nil {
		poll.VisibleRoles = append([]string(nil), (*patch.VisibleRoles)...)
	}
	if patch.EligibleVoters != nil {
		poll.EligibleVoters = *patch.EligibleVoters
	}
	if patch.Options != nil {
		poll.Options, poll.NextOptionSeq = mergeOptions(poll.Options, *patch.Options, poll.NextOptionSeq)
	}

	// 被删除选项的票数不再计入总数
	poll.TotalVotes = sumVotes(poll.Options)
	poll.Options = RecomputePercentages(poll.Options, poll.TotalVotes)
	if !poll.IsTerminal() {
		poll.Status = DeriveStatus(poll.StartDate, poll.EndDate, s.now())
	}
	normalize(poll)
	poll.UpdatedAt = s.now()

	s.persist(ctx)
	s.logger.Info("投票已更新", "poll_id", poll.ID, "status", poll.Status, "total_votes", poll.TotalVotes)

	out := poll.Clone()
	s.notify(MessagePollUpdated, out)
	return out, nil
}

// ClosePoll 提前关闭投票，强制为completed且不再按日期推导。
// 已取消的投票返回ErrPollTerminal。
func (s *PollServiceImpl) ClosePoll(ctx context.Context, id string) (*models.Poll, error) {
	return s.terminate(ctx, id, models.StatusCompleted)
}

// CancelPoll 取消投票，cancelled只能由这里进入。
// 已提前关闭的投票返回ErrPollTerminal。
func (s *PollServiceImpl) CancelPoll(ctx context.Context, id string) (*models.Poll, error) {
	return s.terminate(ctx, id, models.StatusCancelled)
}

func (s *PollServiceImpl) terminate(ctx context.Context, id string, status models.PollStatus) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, poll := s.find(id)
	if poll == nil {
		return nil, ErrPollNotFound
	}

	if poll.IsTerminal() {
		if poll.Status == status {
			// 重复操作不再写回
			return poll.Clone(), nil
		}
		return nil, ErrPollTerminal
	}

	now := s.now()
	poll.Status = status
	if status == models.StatusCompleted {
		poll.ClosedAt = &now
	}
	poll.UpdatedAt = now

	s.persist(ctx)
	s.logger.Info("投票已终止", "poll_id", poll.ID, "status", status)

	out := poll.Clone()
	s.notify(MessagePollUpdated, out)
	return out, nil
}

// DeletePoll 删除投票及其全部选项
func (s *PollServiceImpl) DeletePoll(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, poll := s.find(id)
	if poll == nil {
		return ErrPollNotFound
	}
	s.polls = append(s.polls[:idx], s.polls[idx+1:]...)

	s.persist(ctx)
	s.logger.Info("投票已删除", "poll_id", id)

	if s.notifier != nil {
		s.notifier.BroadcastToPoll(id, &models.WebSocketMessage{
			Type:    MessagePollDeleted,
			PollID:  id,
			Payload: map[string]string{"id": id},
		})
	}
	return nil
}

// CastVote 为选项加一票，同时更新总票数和所有选项的百分比。
// 这一层不做投票人去重。
func (s *PollServiceImpl) CastVote(ctx context.Context, pollID, optionID string) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, poll := s.find(pollID)
	if poll == nil {
		return nil, ErrPollNotFound
	}
	idx, ok := poll.FindOption(optionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOptionNotFound, optionID)
	}

	poll.Options[idx].Votes++
	poll.TotalVotes++
	poll.Options = RecomputePercentages(poll.Options, poll.TotalVotes)
	poll.UpdatedAt = s.now()

	s.persist(ctx)
	s.logger.Debug("投票成功", "poll_id", pollID, "option_id", optionID, "total_votes", poll.TotalVotes)

	out := s.view(poll)
	s.notify(MessagePollUpdated, out)
	return out, nil
}

// Stats 汇总活跃数、结束数和参与率
func (s *PollServiceImpl) Stats(ctx context.Context) (*PollStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &PollStats{TotalPolls: len(s.polls)}
	for _, p := range s.polls {
		poll := s.view(p)
		switch poll.Status {
		case models.StatusActive:
			stats.ActivePolls++
		case models.StatusCompleted:
			stats.CompletedPolls++
		}
		stats.TotalVotes += poll.TotalVotes
		stats.EligibleVoters += poll.EligibleVoters
	}
	if stats.TotalPolls > 0 {
		stats.ParticipationRate = participationRate(stats.TotalVotes, stats.EligibleVoters)
	}
	return stats, nil
}

// find 调用方必须持有锁
func (s *PollServiceImpl) find(id string) (int, *models.Poll) {
	for i, p := range s.polls {
		if p.ID == id {
			return i, p
		}
	}
	return -1, nil
}

// view 返回副本，非终态投票的状态按当前时间刷新
func (s *PollServiceImpl) view(p *models.Poll) *models.Poll {
	out := p.Clone()
	if !out.IsTerminal() {
		out.Status = DeriveStatus(out.StartDate, out.EndDate, s.now())
	}
	return out
}

// persist 整体写回存储，失败只记录日志，内存状态仍然是准的
func (s *PollServiceImpl) persist(ctx context.Context) {
	snapshot := make([]models.Poll, len(s.polls))
	for i, p := range s.polls {
		snapshot[i] = *p.Clone()
	}
	if err := s.repo.Save(ctx, snapshot); err != nil {
		s.logger.Error("保存投票数据失败", "error", err)
	}
}

func (s *PollServiceImpl) notify(msgType string, poll *models.Poll) {
	if s.notifier == nil {
		return
	}
	s.notifier.BroadcastToPoll(poll.ID, &models.WebSocketMessage{
		Type:    msgType,
		PollID:  poll.ID,
		Payload: poll,
	})
}

// mergeOptions 按提交顺序合并选项：已有ID保留票数，新选项票数为0并分配新ID，
// 未提交的选项被移除。新ID从high-water之后分配，被删除选项的ID不会再出现。
func mergeOptions(existing []models.PollOption, submitted []OptionPatch, highWater int) ([]models.PollOption, int) {
	byID := make(map[string]models.PollOption, len(existing))
	next := highWater
	for _, opt := range existing {
		byID[opt.ID] = opt
		if n := optionSeq(opt.ID); n > next {
			next = n
		}
	}

	used := make(map[string]bool, len(submitted))
	merged := make([]models.PollOption, 0, len(submitted))
	for _, sub := range submitted {
		if opt, ok := byID[sub.ID]; ok && !used[sub.ID] {
			opt.Text = sub.Text
			used[sub.ID] = true
			merged = append(merged, opt)
			continue
		}
		next++
		id := optionID(next)
		used[id] = true
		merged = append(merged, models.PollOption{ID: id, Text: sub.Text})
	}
	return merged, next
}

func optionID(n int) string {
	return "opt-" + strconv.Itoa(n)
}

// optionSeq 解析opt-N中的N，格式不符返回0
func optionSeq(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "opt-"))
	if err != nil || !strings.HasPrefix(id, "opt-") {
		return 0
	}
	return n
}

// normalize 补齐缺省的枚举值
func normalize(p *models.Poll) {
	if p.Type == "" {
		p.Type = models.SingleChoice
	}
	if p.Visibility == "" {
		p.Visibility = models.VisibilityPublic
	}
	if p.Status == "" {
		p.Status = models.StatusActive
	}
	if p.Options == nil {
		p.Options = []models.PollOption{}
	}
	for _, opt := range p.Options {
		if n := optionSeq(opt.ID); n > p.NextOptionSeq {
			p.NextOptionSeq = n
		}
	}
}
