//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

const (
	fastembedMaxLength = 512
	fastembedBatch     = 64
)

// FastEmbedConfig selects the local ONNX model.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string // defaults to ./local_cache
	MaxLength int
}

type localModel struct {
	id  fastembed.EmbeddingModel
	dim int
}

// localModels is keyed by both the Hugging Face name and the fastembed
// identifier so either spelling works in configuration.
var localModels = func() map[string]localModel {
	byHF := map[string]localModel{
		"BAAI/bge-small-en-v1.5":                 {fastembed.BGESmallENV15, 384},
		"BAAI/bge-small-en":                      {fastembed.BGESmallEN, 384},
		"BAAI/bge-base-en-v1.5":                  {fastembed.BGEBaseENV15, 768},
		"BAAI/bge-base-en":                       {fastembed.BGEBaseEN, 768},
		"BAAI/bge-small-zh-v1.5":                 {fastembed.BGESmallZH, 512},
		"sentence-transformers/all-MiniLM-L6-v2": {fastembed.AllMiniLML6V2, 384},
	}
	out := make(map[string]localModel, 2*len(byHF))
	for name, m := range byHF {
		out[name] = m
		out[string(m.id)] = m
	}
	return out
}()

// FastEmbedProvider runs embeddings in-process. ONNX_PATH must point at the
// onnxruntime shared library.
type FastEmbedProvider struct {
	mu    sync.RWMutex
	flag  *fastembed.FlagEmbedding
	model localModel
}

// NewFastEmbedProvider loads the model, downloading it into CacheDir on
// first use.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	m, ok := localModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: model %q is not available locally", ErrInvalidConfig, cfg.Model)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = fastembedMaxLength
	}

	quiet := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                m.id,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("loading local model %s: %w", cfg.Model, err)
	}
	return &FastEmbedProvider{flag: flag, model: m}, nil
}

// EmbedDocuments embeds chunk texts as passages.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	return p.run(ctx, func(f *fastembed.FlagEmbedding) ([][]float32, error) {
		return f.PassageEmbed(texts, fastembedBatch)
	})
}

// EmbedQuery embeds a question with the query prefix the bge models expect.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	out, err := p.run(ctx, func(f *fastembed.FlagEmbedding) ([][]float32, error) {
		v, err := f.QueryEmbed(text)
		return [][]float32{v}, err
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (p *FastEmbedProvider) run(ctx context.Context, fn func(*fastembed.FlagEmbedding) ([][]float32, error)) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.flag == nil {
		return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
	}
	out, err := fn(p.flag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return out, nil
}

func (p *FastEmbedProvider) Dimension() int { return p.model.dim }

// Close releases the ONNX session. Later calls fail with ErrEmbeddingFailed.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flag == nil {
		return nil
	}
	err := p.flag.Destroy()
	p.flag = nil
	return err
}
