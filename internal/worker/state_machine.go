package worker

import (
	"github.com/docchat/backend-go/internal/models"
)

// StateMachine 文档嵌入状态机
// pending → processing → {completed | failed}
// failed → pending（手动重新入队），completed → pending（重新嵌入）
type StateMachine struct{}

func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

var transitions = map[string][]string{
	models.DocStatusPending:    {models.DocStatusProcessing},
	models.DocStatusProcessing: {models.DocStatusCompleted, models.DocStatusFailed, models.DocStatusPending},
	models.DocStatusFailed:     {models.DocStatusPending},
	models.DocStatusCompleted:  {models.DocStatusPending},
}

// CanTransition 检查状态转换是否合法
func (sm *StateMachine) CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanRetry 只有失败的文档可以重新入队
func (sm *StateMachine) CanRetry(status string) bool {
	return sm.CanTransition(status, models.DocStatusPending) && status == models.DocStatusFailed
}
