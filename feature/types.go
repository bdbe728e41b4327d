package feature

import (
	"github.com/rushteam/reckit/corpus"
)

// RawFeatures 是从内容 API 取回的单个物品原始文本特征。
type RawFeatures struct {
	ID          string
	Genres      string // 类型名，", " 拼接
	Keywords    string // 关键词，", " 拼接
	Overview    string
	Tagline     string
	Language    string // original_language，缺失为 "Unknown"
	ReleaseDate string // YYYY-MM-DD
}

// Decade 由发行日期推导年代，日期缺失或非法时为 0。
func (r *RawFeatures) Decade() int {
	return corpus.DecadeOf(corpus.YearOf(r.ReleaseDate))
}

// Texts 按 Genres / Keywords / Overview / Tagline 的固定顺序返回待编码文本
func (r *RawFeatures) Texts() []string {
	return []string{r.Genres, r.Keywords, r.Overview, r.Tagline}
}
