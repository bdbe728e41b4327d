package corpus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/pkg/conv"
)

// 语料产物文件名（由训练侧写出）
const (
	EmbeddingsFile = "embeddings.json"
	IDsFile        = "movie_ids.json"
	MetadataFile   = "metadata.json"
)

// Load 从目录读取三个语料产物并构建 Corpus。
//
//   - embeddings.json：N×D 浮点矩阵
//   - movie_ids.json：N 个物品 ID（数字或字符串）
//   - metadata.json：id -> {popularity, wr, language, decade}
//
// 缺失元数据的物品使用 DefaultMetadata。任何读取或校验失败都返回错误，调用方应视为启动失败。
func Load(dir string) (*Corpus, error) {
	var matrix [][]float64
	if err := readJSON(filepath.Join(dir, EmbeddingsFile), &matrix); err != nil {
		return nil, err
	}
	var rawIDs []any
	if err := readJSON(filepath.Join(dir, IDsFile), &rawIDs); err != nil {
		return nil, err
	}
	meta := make(map[string]Metadata)
	if err := readJSON(filepath.Join(dir, MetadataFile), &meta); err != nil {
		return nil, err
	}

	if len(rawIDs) != len(matrix) {
		return nil, invalid(fmt.Sprintf("%d ids for %d embedding rows", len(rawIDs), len(matrix)))
	}

	records := make([]Record, len(matrix))
	for i, raw := range rawIDs {
		id, ok := conv.ToID(raw)
		if !ok {
			return nil, invalid(fmt.Sprintf("row %d has invalid id %v", i, raw))
		}
		m, ok := meta[id]
		if !ok {
			m = DefaultMetadata()
		}
		records[i] = Record{ID: id, Vector: matrix[i], Meta: m}
	}
	return New(records)
}

// Save 将语料写成 Load 可读取的三个产物文件。
func Save(dir string, c *Corpus) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("corpus: create dir: %w", err)
	}
	meta := make(map[string]Metadata, c.Len())
	for i, id := range c.ids {
		meta[id] = c.meta[i]
	}
	if err := writeJSON(filepath.Join(dir, EmbeddingsFile), c.vectors); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, IDsFile), c.ids); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, MetadataFile), meta)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.WrapDomainError(core.ModuleCorpus, core.ErrorCodeUnavailable, "corpus: read "+filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.WrapDomainError(core.ModuleCorpus, core.ErrorCodeUnavailable, "corpus: decode "+filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("corpus: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("corpus: write %s: %w", filepath.Base(path), err)
	}
	return nil
}
