package feature

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig 是 OpenAI 兼容 embedding 接口的配置。
// 任何实现了 /v1/embeddings 的服务（如部署 all-MiniLM-L6-v2 的 sentence-transformers 服务）都可以接入。
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int  // 期望的向量维度，用于校验返回值
	SendDims   bool // 是否在请求中携带 dimensions 参数
}

// OpenAIEncoder 通过 OpenAI 兼容接口编码文本
type OpenAIEncoder struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIEncoder 创建编码器
func NewOpenAIEncoder(cfg OpenAIConfig) (*OpenAIEncoder, error) {
	if cfg.Model == "" {
		return nil, errors.New("feature: openai encoder requires a model")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("feature: openai encoder requires dimensions > 0")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIEncoder{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

func (e *OpenAIEncoder) Name() string { return "openai:" + e.cfg.Model }

func (e *OpenAIEncoder) Dimension() int { return e.cfg.Dimensions }

// Encode 只发送非空文本，空文本直接得到零向量。
func (e *OpenAIEncoder) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var (
		input []string
		slots []int
	)
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float64, e.cfg.Dimensions)
			continue
		}
		input = append(input, t)
		slots = append(slots, i)
	}
	if len(input) == 0 {
		return out, nil
	}

	req := openai.EmbeddingRequest{
		Input: input,
		Model: openai.EmbeddingModel(e.cfg.Model),
	}
	if e.cfg.SendDims {
		req.Dimensions = e.cfg.Dimensions
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("embedding response has %d vectors, want %d", len(resp.Data), len(input))
	}

	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(slots) {
			return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
		}
		if len(data.Embedding) != e.cfg.Dimensions {
			return nil, fmt.Errorf("embedding has dimension %d, want %d", len(data.Embedding), e.cfg.Dimensions)
		}
		vec := make([]float64, len(data.Embedding))
		for i, x := range data.Embedding {
			vec[i] = float64(x)
		}
		out[slots[data.Index]] = normalize(vec)
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("embedding response missing vector for input %d", i)
		}
	}
	return out, nil
}
