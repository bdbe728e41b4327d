package feature

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/pkg/metrics"
)

// Encoder 把文本编码成定长向量。
// 输出向量为单位长度；空文本编码为零向量。实现必须是并发安全的。
type Encoder interface {
	Name() string

	// Dimension 返回输出向量维度
	Dimension() int

	// Encode 批量编码，返回值与 texts 一一对应
	Encode(ctx context.Context, texts []string) ([][]float64, error)
}

// FieldWeights 是四个文本字段的组合权重
type FieldWeights struct {
	Genres   float64 `koanf:"genres"`
	Keywords float64 `koanf:"keywords"`
	Overview float64 `koanf:"overview"`
	Tagline  float64 `koanf:"tagline"`
}

// OnlineFieldWeights 是在线编码冷启动物品时的权重（未归一化）。
var OnlineFieldWeights = FieldWeights{Genres: 1.0, Keywords: 1.0, Overview: 1.0, Tagline: 0.5}

// TrainingFieldWeights 是离线语料使用的权重（归一化到和为 1）。
// 与 OnlineFieldWeights 相互独立，离线和在线向量的尺度因此不同。
var TrainingFieldWeights = OnlineFieldWeights.Normalized()

// Slice 按 Genres / Keywords / Overview / Tagline 顺序返回权重
func (w FieldWeights) Slice() []float64 {
	return []float64{w.Genres, w.Keywords, w.Overview, w.Tagline}
}

// Normalized 返回缩放到和为 1 的权重；和为 0 时原样返回。
func (w FieldWeights) Normalized() FieldWeights {
	sum := w.Genres + w.Keywords + w.Overview + w.Tagline
	if sum == 0 {
		return w
	}
	return FieldWeights{
		Genres:   w.Genres / sum,
		Keywords: w.Keywords / sum,
		Overview: w.Overview / sum,
		Tagline:  w.Tagline / sum,
	}
}

// Combine 对字段向量做加权求和。vectors 顺序与 FieldWeights.Slice 一致。
func Combine(w FieldWeights, vectors [][]float64) ([]float64, error) {
	weights := w.Slice()
	if len(vectors) != len(weights) {
		return nil, fmt.Errorf("feature: combine expects %d vectors, got %d", len(weights), len(vectors))
	}
	dim := len(vectors[0])
	out := make([]float64, dim)
	for f, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("feature: field %d has dimension %d, want %d", f, len(vec), dim)
		}
		for i, x := range vec {
			out[i] += weights[f] * x
		}
	}
	return out, nil
}

// EncodeMovie 用一次批量调用编码物品的四个文本字段并按权重组合。
// 编码失败返回 encoder 模块的 UNAVAILABLE 错误。
func EncodeMovie(ctx context.Context, enc Encoder, w FieldWeights, raw *RawFeatures) ([]float64, error) {
	vectors, err := enc.Encode(ctx, raw.Texts())
	if err != nil {
		metrics.RecordEncodeFailure()
		return nil, core.WrapDomainError(core.ModuleEncoder, core.ErrorCodeUnavailable, "encoder: "+enc.Name(), err)
	}
	out, err := Combine(w, vectors)
	if err != nil {
		metrics.RecordEncodeFailure()
		return nil, core.WrapDomainError(core.ModuleEncoder, core.ErrorCodeUnavailable, "encoder: "+enc.Name(), err)
	}
	return out, nil
}

// normalize 原地做 L2 归一化，零向量保持不变。
func normalize(v []float64) []float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	if s == 0 {
		return v
	}
	n := math.Sqrt(s)
	for i := range v {
		v[i] /= n
	}
	return v
}

// HashEncoder 是本地确定性的特征哈希编码器。
// 文本按非字母数字字符切分、转小写，每个 token 经 fnv32a 落到一个桶，
// 符号位由哈希的最高位决定，最后做 L2 归一化。用于开发环境和测试。
type HashEncoder struct {
	NumBuckets int // 向量维度
}

// NewHashEncoder 创建 Hash 编码器
func NewHashEncoder(numBuckets int) *HashEncoder {
	if numBuckets <= 0 {
		numBuckets = 384
	}
	return &HashEncoder{NumBuckets: numBuckets}
}

func (e *HashEncoder) Name() string { return "hash" }

func (e *HashEncoder) Dimension() int { return e.NumBuckets }

func (e *HashEncoder) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = e.encodeOne(text)
	}
	return out, nil
}

func (e *HashEncoder) encodeOne(text string) []float64 {
	vec := make([]float64, e.NumBuckets)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := int(sum % uint32(e.NumBuckets))
		if sum&(1<<31) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	return normalize(vec)
}
