// Package corpus 提供预计算向量语料：物品 ID、向量矩阵和离线元数据。
//
// Corpus 在启动时加载一次，之后只读，可被任意数量的请求并发读取。
// 行号（index）是物品在语料中的固定顺序，排序平分时以此保持稳定。
package corpus

import (
	"fmt"
	"math"

	"github.com/rushteam/reckit/core"
)

// Corpus 是不可变的向量语料。
type Corpus struct {
	ids     []string
	vectors [][]float64
	norms   []float64
	meta    []Metadata
	index   map[string]int
	dim     int
}

// Record 是构建语料的一行输入
type Record struct {
	ID     string
	Vector []float64
	Meta   Metadata
}

// New 由记录构建语料，校验失败返回 corpus 模块的 UNAVAILABLE 错误。
func New(records []Record) (*Corpus, error) {
	if len(records) == 0 {
		return nil, invalid("corpus is empty")
	}
	dim := len(records[0].Vector)
	if dim == 0 {
		return nil, invalid("embedding dimension is zero")
	}

	c := &Corpus{
		ids:     make([]string, len(records)),
		vectors: make([][]float64, len(records)),
		norms:   make([]float64, len(records)),
		meta:    make([]Metadata, len(records)),
		index:   make(map[string]int, len(records)),
		dim:     dim,
	}
	for i, r := range records {
		if r.ID == "" {
			return nil, invalid(fmt.Sprintf("row %d has empty id", i))
		}
		if _, dup := c.index[r.ID]; dup {
			return nil, invalid(fmt.Sprintf("duplicate id %q", r.ID))
		}
		if len(r.Vector) != dim {
			return nil, invalid(fmt.Sprintf("row %d has dimension %d, want %d", i, len(r.Vector), dim))
		}
		vec := make([]float64, dim)
		copy(vec, r.Vector)

		c.ids[i] = r.ID
		c.vectors[i] = vec
		c.norms[i] = Norm(vec)
		c.meta[i] = r.Meta.normalized()
		c.index[r.ID] = i
	}
	return c, nil
}

func invalid(msg string) error {
	return core.NewDomainError(core.ModuleCorpus, core.ErrorCodeUnavailable, "corpus: "+msg)
}

// Len 返回物品数量 N
func (c *Corpus) Len() int { return len(c.ids) }

// Dim 返回向量维度 D
func (c *Corpus) Dim() int { return c.dim }

// ID 返回第 i 行的物品 ID
func (c *Corpus) ID(i int) string { return c.ids[i] }

// IDs 返回全部物品 ID 的副本（语料顺序）
func (c *Corpus) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Vector 返回第 i 行向量。调用方不得修改返回值。
func (c *Corpus) Vector(i int) []float64 { return c.vectors[i] }

// Meta 返回第 i 行元数据
func (c *Corpus) Meta(i int) Metadata { return c.meta[i] }

// Lookup 返回物品所在行号
func (c *Corpus) Lookup(id string) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// MetaByID 按 ID 查元数据
func (c *Corpus) MetaByID(id string) (Metadata, bool) {
	i, ok := c.index[id]
	if !ok {
		return Metadata{}, false
	}
	return c.meta[i], true
}

// Similarities 计算 query 与每一行的余弦相似度，结果按语料顺序排列。
// 任一侧范数为 0 时相似度为 0；结果截断在 [-1, 1]。
func (c *Corpus) Similarities(query []float64) ([]float64, error) {
	if len(query) != c.dim {
		return nil, core.NewDomainError(core.ModuleCorpus, core.ErrorCodeInvalidInput,
			fmt.Sprintf("corpus: query dimension %d, want %d", len(query), c.dim))
	}
	out := make([]float64, len(c.vectors))
	qn := Norm(query)
	if qn == 0 {
		return out, nil
	}
	for i, vec := range c.vectors {
		if c.norms[i] == 0 {
			continue
		}
		out[i] = clamp(Dot(query, vec)/(qn*c.norms[i]), -1, 1)
	}
	return out, nil
}

// Dot 返回两个等长向量的内积
func Dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Norm 返回 L2 范数
func Norm(v []float64) float64 {
	return math.Sqrt(Dot(v, v))
}

// Mean 返回等长向量的逐维平均；vectors 为空时返回 nil。
func Mean(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := range out {
			out[i] += v[i]
		}
	}
	n := float64(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
