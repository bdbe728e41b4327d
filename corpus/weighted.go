package corpus

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// 训练侧口径：m 取投票数的 60 分位，C 取平均评分。
const VoteCountQuantile = 0.60

// WeightedRating 计算贝叶斯加权评分：
//
//	WR = v/(v+m)·R + m/(v+m)·C
//
// v+m 为 0 时返回 C。
func WeightedRating(r, v, c, m float64) float64 {
	if v+m == 0 {
		return c
	}
	return v/(v+m)*r + m/(v+m)*c
}

// Quantile 返回 q 分位数（线性插值），values 为空时返回 0。
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q = clamp(q, 0, 1)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// MinMax 将数值线性缩放到 [0,1]；所有值相等时全部为 0。
func MinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

// DecadeOf 返回年份所在年代（1994 -> 1990），year <= 0 返回 0。
func DecadeOf(year int) int {
	if year <= 0 {
		return 0
	}
	return year / 10 * 10
}

// YearOf 解析 "YYYY-MM-DD" 形式日期的年份，无法解析返回 0。
func YearOf(date string) int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year <= 0 {
		return 0
	}
	return year
}

// MovieStats 是训练侧的原始统计数据
type MovieStats struct {
	ID          string
	VoteAverage float64
	VoteCount   float64
	Popularity  float64
	Language    string
	ReleaseDate string
}

// BuildMetadata 按训练口径生成离线元数据：
// 计算 WR，并对 popularity 和 WR 分别做 min-max 归一化，年代由发行日期推导。
func BuildMetadata(stats []MovieStats) map[string]Metadata {
	out := make(map[string]Metadata, len(stats))
	if len(stats) == 0 {
		return out
	}

	votes := make([]float64, len(stats))
	var sum float64
	for i, s := range stats {
		votes[i] = s.VoteCount
		sum += s.VoteAverage
	}
	c := sum / float64(len(stats))
	m := Quantile(votes, VoteCountQuantile)

	pops := make([]float64, len(stats))
	wrs := make([]float64, len(stats))
	for i, s := range stats {
		pops[i] = s.Popularity
		wrs[i] = WeightedRating(s.VoteAverage, s.VoteCount, c, m)
	}
	pops = MinMax(pops)
	wrs = MinMax(wrs)

	for i, s := range stats {
		out[s.ID] = Metadata{
			Popularity: pops[i],
			WR:         wrs[i],
			Language:   s.Language,
			Decade:     DecadeOf(YearOf(s.ReleaseDate)),
		}.normalized()
	}
	return out
}
