package models

import (
	"encoding/json"
	"strings"
	"time"
)

// PollType 投票类型，约束投票方式（统计引擎本身只做计数汇总，不校验）
type PollType string

const (
	SingleChoice   PollType = "single-choice"
	MultipleChoice PollType = "multiple-choice"
	YesNo          PollType = "yes-no"
)

// PollStatus 投票生命周期状态
type PollStatus string

const (
	StatusUpcoming  PollStatus = "upcoming"  // 未开始
	StatusActive    PollStatus = "active"    // 进行中
	StatusCompleted PollStatus = "completed" // 已结束
	StatusCancelled PollStatus = "cancelled" // 已取消，只能通过显式操作进入
)

// Visibility 投票可见范围
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
)

// Poll represents a voting record owned by the poll engine
type Poll struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Type           PollType     `json:"type"`
	Options        []PollOption `json:"options"`
	NextOptionSeq  int          `json:"nextOptionSeq,omitempty"` // 已分配过的最大选项序号，删除选项后不回退
	GroupName      string       `json:"groupName"`
	CreatedBy      string       `json:"createdBy"`
	StartDate      string       `json:"startDate"`
	EndDate        string       `json:"endDate"`
	Status         PollStatus   `json:"status"`
	ClosedAt       *time.Time   `json:"closedAt,omitempty"` // 提前关闭的时间，存在即为终态
	TotalVotes     int64        `json:"totalVotes"`
	Visibility     Visibility   `json:"visibility"`
	VisibleRoles   []string     `json:"visibleRoles,omitempty"`
	EligibleVoters int64        `json:"eligibleVoters"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// PollOption represents one selectable choice within a poll
type PollOption struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Votes      int64  `json:"votes"`
	Percentage int    `json:"percentage"`
}

// IsTerminal 是否处于显式终态（手动关闭或已取消），终态不再按日期重新推导
func (p *Poll) IsTerminal() bool {
	return p.Status == StatusCancelled || p.ClosedAt != nil
}

// VisibleTo 判断指定角色能否看到该投票
func (p *Poll) VisibleTo(role string) bool {
	if p.Visibility != VisibilityRestricted {
		return true
	}
	for _, r := range p.VisibleRoles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// FindOption 按ID查找选项，返回下标
func (p *Poll) FindOption(optionID string) (int, bool) {
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			return i, true
		}
	}
	return -1, false
}

// Clone 深拷贝，避免调用方修改引擎内部状态
func (p *Poll) Clone() *Poll {
	cp := *p
	cp.Options = append([]PollOption(nil), p.Options...)
	if p.VisibleRoles != nil {
		cp.VisibleRoles = append([]string(nil), p.VisibleRoles...)
	}
	if p.ClosedAt != nil {
		closedAt := *p.ClosedAt
		cp.ClosedAt = &closedAt
	}
	return &cp
}

// Group 群组目录中的一条记录，只用于填充群组筛选
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WebSocketMessage 定义WebSocket消息格式
type WebSocketMessage struct {
	Type    string      `json:"type"`    // 消息类型
	PollID  string      `json:"pollId"`  // 投票ID
	Payload interface{} `json:"payload"` // 消息内容
}

// ToJSON 将WebSocket消息转换为JSON字节数组
func (m *WebSocketMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
