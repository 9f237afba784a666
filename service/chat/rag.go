package chat

import (
	"context"
	"discord-rag-backend/config"
	"discord-rag-backend/dao"
	"discord-rag-backend/service/knowledge-base/etl"
	"discord-rag-backend/utils"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	v2 "github.com/tmc/langchaingo/vectorstores/milvus/v2"
)

const (
	// 缓存key前缀，与指纹一起构成缓存键
	cacheKeyPrefix = "rag:cache:"

	// 检索返回的相关切片数量
	retrieverTopK = 5
)

// 配置 300s 超时时间处理 LLM 输出
var llmHTTPClient *http.Client = utils.NewHTTPClient(
	utils.WithTimeout(300 * time.Second),
)

var (
	ragLLM   *openai.LLM
	ragStore vectorstores.VectorStore
)

// QueryResult 问答结果
type QueryResult struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
	Cached  bool     `json:"cached"`
}

func init() {
	var err error
	ragLLM, err = openai.New(
		openai.WithModel(config.Cfg.Model.ChatModel),
		openai.WithToken(config.Cfg.Model.APIKey),
		openai.WithBaseURL(config.Cfg.Model.BaseURL),
		openai.WithHTTPClient(llmHTTPClient),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create llm client: %v", err))
	}

	embedderClient, err := openai.New(
		openai.WithEmbeddingModel(config.Cfg.Model.EmbeddingModel),
		openai.WithToken(config.Cfg.Model.APIKey),
		openai.WithBaseURL(config.Cfg.Model.BaseURL),
		openai.WithHTTPClient(utils.DefaultHTTPClient()),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder client: %v", err))
	}

	embedder, err := embeddings.NewEmbedder(embedderClient,
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}

	ragStore, err = v2.New(context.Background(),
		milvusclient.ClientConfig{
			Address: config.Cfg.Milvus.Endpoint,
			APIKey:  config.Cfg.Milvus.APIKey,
		},
		v2.WithEmbedder(embedder),
		v2.WithCollectionName(etl.CollectionName),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create milvus vector store: %v", err))
	}
}

// Ask 基于知识库回答问题，命中缓存时不触发检索和生成
func Ask(ctx context.Context, question string) (*QueryResult, error) {
	key := cacheKey(question)

	// 缓存异常按miss处理，不影响问答
	if cached, err := dao.GetCachedResponse(key); err == nil {
		var result QueryResult
		if err := json.Unmarshal(cached.Payload, &result); err == nil {
			result.Cached = true
			return &result, nil
		}
		slog.Warn("Failed to decode cached response, falling through", "cache_key", key[:8])
	}

	retriever := vectorstores.ToRetriever(ragStore, retrieverTopK)
	qa := chains.NewRetrievalQAFromLLM(ragLLM, retriever)
	qa.ReturnSourceDocuments = true

	out, err := chains.Call(ctx, qa, map[string]any{"query": question})
	if err != nil {
		return nil, fmt.Errorf("failed to run retrieval chain: %v", err)
	}

	answer, _ := out["text"].(string)
	result := &QueryResult{
		Answer:  answer,
		Sources: sourceNames(out["sourceDocuments"]),
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %v", err)
	}
	ttl := time.Duration(config.Cfg.Cache.TTLSeconds) * time.Second
	if err := dao.SetCachedResponse(key, payload, ttl); err != nil {
		slog.Warn("Failed to cache response", "cache_key", key[:8], "err", err)
	}

	return result, nil
}

// cacheKey 归一化问题文本后取指纹，同义空白和大小写差异共享缓存
func cacheKey(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	return utils.FingerprintBytes([]byte(cacheKeyPrefix + normalized))
}

func sourceNames(v any) []string {
	docs, ok := v.([]schema.Document)
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	var names []string
	for _, doc := range docs {
		name, _ := doc.Metadata["file_name"].(string)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
