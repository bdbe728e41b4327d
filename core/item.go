package core

import "github.com/rushteam/reckit/pkg/utils"

// Item 是推荐链路中的统一承载结构：特征、分数、标签。
// Index 是物品在语料矩阵中的行号，排序平分时按 Index 保持稳定顺序。
type Item struct {
	ID       string
	Index    int
	Score    float64
	Features map[string]float64
	Labels   map[string]utils.Label
}

func NewItem(id string, index int) *Item {
	return &Item{
		ID:       id,
		Index:    index,
		Features: make(map[string]float64),
		Labels:   make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}
