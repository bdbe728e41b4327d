package corpus

// UnknownLanguage 是缺失语言时的占位值
const UnknownLanguage = "Unknown"

// Metadata 是语料物品的离线元数据（由训练侧预先计算）。
//
//   - Popularity / WR：经过 min-max 归一化，取值 [0,1]
//   - Language：原始语言代码，缺失为 "Unknown"
//   - Decade：发行年代（如 1990），缺失为 0
type Metadata struct {
	Popularity float64 `json:"popularity"`
	WR         float64 `json:"wr"`
	Language   string  `json:"language"`
	Decade     int     `json:"decade"`
}

// DefaultMetadata 返回缺失元数据时使用的默认值
func DefaultMetadata() Metadata {
	return Metadata{Language: UnknownLanguage}
}

func (m Metadata) normalized() Metadata {
	if m.Language == "" {
		m.Language = UnknownLanguage
	}
	return m
}
