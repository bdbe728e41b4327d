package core

// Query 是由观看历史聚合出的查询：平均向量 + 上下文信号。
type Query struct {
	// Vector 是历史物品向量的逐维平均
	Vector []float64

	// Exclude 是需要从结果中剔除的物品（通常就是历史本身）
	Exclude map[string]struct{}

	// RefDecade 是历史的参考年代（解析出的年代均值取整，默认 2000）
	RefDecade int

	// RefLanguage 是历史中出现最多的语言（默认 "Unknown"）
	RefLanguage string
}

// Excluded 判断物品是否在排除集合中。
func (q *Query) Excluded(id string) bool {
	if q == nil || q.Exclude == nil {
		return false
	}
	_, ok := q.Exclude[id]
	return ok
}

// RecommendContext 承载一次推荐请求的上下文，贯穿整个 Pipeline 透传。
// 请求之间不共享可变状态。
type RecommendContext struct {
	// GroupID 是观影小组/会话 ID（直接传入历史时为空）
	GroupID string

	// History 是去重后的观看历史，按最近观看排序
	History []string

	// Query 由 resolver 聚合得到，排序阶段只读
	Query *Query

	// Params 请求级参数（可选，供自定义 Node / 表达式过滤使用）
	Params map[string]any
}

// ExcludeSet 由 ID 列表构建排除集合。
func ExcludeSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
