package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"group-voting-backend/cache"
	"group-voting-backend/models"
	"group-voting-backend/service"

	"github.com/gin-gonic/gin"
)

// VoteGuard 调用层的投票去重，cache.VoteGuard实现该接口
type VoteGuard interface {
	Claim(ctx context.Context, pollID, voterID string) error
	Release(ctx context.Context, pollID, voterID string) error
}

// PollHandler 投票相关的HTTP处理器
type PollHandler struct {
	service service.PollService
	guard   VoteGuard // 为nil时不去重
	logger  *slog.Logger
}

// NewPollHandler 创建投票处理器
func NewPollHandler(svc service.PollService, guard VoteGuard, logger *slog.Logger) *PollHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollHandler{service: svc, guard: guard, logger: logger}
}

// CreatePollInput 创建投票的请求体
type CreatePollInput struct {
	Title          string            `json:"title" binding:"required"`
	Description    string            `json:"description"`
	Type           models.PollType   `json:"type" binding:"omitempty,oneof=single-choice multiple-choice yes-no"`
	Options        []string          `json:"options"`
	GroupName      string            `json:"groupName"`
	StartDate      string            `json:"startDate"`
	EndDate        string            `json:"endDate"`
	Visibility     models.Visibility `json:"visibility" binding:"omitempty,oneof=public restricted"`
	VisibleRoles   []string          `json:"visibleRoles"`
	EligibleVoters int64             `json:"eligibleVoters" binding:"min=0"`
}

// UpdateOptionInput 编辑时提交的选项，id为空表示新增
type UpdateOptionInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// UpdatePollInput 编辑投票的请求体，未出现的字段保持不变
type UpdatePollInput struct {
	Title          *string              `json:"title"`
	Description    *string              `json:"description"`
	Type           *models.PollType     `json:"type" binding:"omitempty,oneof=single-choice multiple-choice yes-no"`
	Options        *[]UpdateOptionInput `json:"options"`
	GroupName      *string              `json:"groupName"`
	StartDate      *string              `json:"startDate"`
	EndDate        *string              `json:"endDate"`
	Visibility     *models.Visibility   `json:"visibility" binding:"omitempty,oneof=public restricted"`
	VisibleRoles   *[]string            `json:"visibleRoles"`
	EligibleVoters *int64               `json:"eligibleVoters" binding:"omitempty,min=0"`
}

// VoteInput 投票请求体
type VoteInput struct {
	OptionID string `json:"optionId" binding:"required"`
}

// CreatePoll 创建投票
func (h *PollHandler) CreatePoll(c *gin.Context) {
	var input CreatePollInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(input.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}

	poll, err := h.service.CreatePoll(c.Request.Context(), service.PollInput{
		Title:          input.Title,
		Description:    input.Description,
		Type:           input.Type,
		OptionTexts:    input.Options,
		GroupName:      input.GroupName,
		CreatedBy:      CurrentSession(c).UserName,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		Visibility:     input.Visibility,
		VisibleRoles:   input.VisibleRoles,
		EligibleVoters: input.EligibleVoters,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, poll)
}

// GetPolls 列出投票，支持q、status、group筛选
func (h *PollHandler) GetPolls(c *gin.Context) {
	session := CurrentSession(c)
	polls, err := h.service.ListPolls(c.Request.Context(), service.PollFilter{
		Search:  c.Query("q"),
		Status:  models.PollStatus(c.Query("status")),
		Group:   c.Query("group"),
		Role:    session.Role,
		ShowAll: session.IsAdmin,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, polls)
}

// GetPoll 获取单个投票
func (h *PollHandler) GetPoll(c *gin.Context) {
	poll, err := h.visiblePoll(c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// visiblePoll 读取当前会话可见的投票，对无权查看的角色隐藏投票的存在
func (h *PollHandler) visiblePoll(c *gin.Context, id string) (*models.Poll, error) {
	poll, err := h.service.GetPoll(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	session := CurrentSession(c)
	if !session.IsAdmin && !poll.VisibleTo(session.Role) {
		return nil, service.ErrPollNotFound
	}
	return poll, nil
}

// UpdatePoll 编辑投票
func (h *PollHandler) UpdatePoll(c *gin.Context) {
	var input UpdatePollInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}

	patch := service.PollPatch{
		Title:          input.Title,
		Description:    input.Description,
		Type:           input.Type,
		GroupName:      input.GroupName,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		Visibility:     input.Visibility,
		VisibleRoles:   input.VisibleRoles,
		EligibleVoters: input.EligibleVoters,
	}
	if input.Options != nil {
		options := make([]service.OptionPatch, len(*input.Options))
		for i, opt := range *input.Options {
			options[i] = service.OptionPatch{ID: opt.ID, Text: opt.Text}
		}
		patch.Options = &options
	}

	poll, err := h.service.EditPoll(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// ClosePoll 提前结束投票
func (h *PollHandler) ClosePoll(c *gin.Context) {
	poll, err := h.service.ClosePoll(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// CancelPoll 取消投票
func (h *PollHandler) CancelPoll(c *gin.Context) {
	poll, err := h.service.CancelPoll(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// DeletePoll 删除投票
func (h *PollHandler) DeletePoll(c *gin.Context) {
	if err := h.service.DeletePoll(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Poll deleted successfully"})
}

// SubmitVote 为选项投一票
func (h *PollHandler) SubmitVote(c *gin.Context) {
	var input VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	pollID := c.Param("id")
	voter := voterID(c)

	// 受限投票只允许可见角色投票
	if _, err := h.visiblePoll(c, pollID); err != nil {
		h.respondError(c, err)
		return
	}

	claimed := false
	if h.guard != nil {
		err := h.guard.Claim(ctx, pollID, voter)
		switch {
		case err == nil:
			claimed = true
		case errors.Is(err, cache.ErrAlreadyVoted):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "You have already voted in this poll"})
			return
		default:
			// Redis不可用时放行，不阻塞投票
			h.logger.Warn("投票去重检查失败", "poll_id", pollID, "error", err)
		}
	}

	poll, err := h.service.CastVote(ctx, pollID, input.OptionID)
	if err != nil {
		if claimed {
			if rerr := h.guard.Release(context.WithoutCancel(ctx), pollID, voter); rerr != nil {
				h.logger.Warn("撤销投票登记失败", "poll_id", pollID, "error", rerr)
			}
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// GetStats 返回面板汇总数据
func (h *PollHandler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// PollExists 供WebSocket处理器在升级前检查投票是否存在且对当前会话可见
func (h *PollHandler) PollExists(c *gin.Context, pollID string) bool {
	_, err := h.visiblePoll(c, pollID)
	return err == nil
}

// respondError 将业务错误映射为HTTP状态码
func (h *PollHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPollNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
	case errors.Is(err, service.ErrOptionNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid option for this poll"})
	case errors.Is(err, service.ErrInvalidDateRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Start date must not be after end date"})
	case errors.Is(err, service.ErrPollTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "Poll is already closed or cancelled"})
	default:
		h.logger.Error("请求处理失败", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// voterID 优先使用X-User-ID，否则使用客户端IP
func voterID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
		return id
	}
	return c.ClientIP()
}
