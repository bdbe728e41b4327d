// Package history 读取观影小组的最近观看历史。
package history

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rushteam/reckit/core"
)

// DefaultWindow 是参与推荐的最近观看物品数
const DefaultWindow = 20

// Source 提供按时间倒序的观看历史。
// Recent 返回最多 k 个去重后的物品 ID，最新的在前；小组不存在时返回空列表。
type Source interface {
	Recent(ctx context.Context, groupID string, k int) ([]string, error)
}

// Window 对按时间倒序的 ID 序列去重（保留首次出现）并截断到 k 个，空 ID 被忽略。
// k <= 0 时不截断。
func Window(ids []string, k int) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, min(len(ids), capFor(k, len(ids))))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if k > 0 && len(out) >= k {
			break
		}
	}
	return out
}

func capFor(k, n int) int {
	if k <= 0 {
		return n
	}
	return k
}

var validate = validator.New()

// groupRef 小组 ID 是 24 位十六进制的对象 ID
type groupRef struct {
	ID string `validate:"required,hexadecimal,len=24"`
}

// ErrInvalidGroup 表示小组 ID 格式非法
var ErrInvalidGroup = core.NewDomainError(core.ModuleHistory, core.ErrorCodeInvalidInput, "history: invalid group id")

// ValidateGroupID 校验小组 ID 格式，非法时返回 ErrInvalidGroup 的包装。
func ValidateGroupID(groupID string) error {
	if err := validate.Struct(groupRef{ID: groupID}); err != nil {
		return core.WrapDomainError(core.ModuleHistory, core.ErrorCodeInvalidInput, "history: invalid group id "+groupID, err)
	}
	return nil
}
