package etl

import (
	"context"
	"discord-rag-backend/config"
	"discord-rag-backend/dao"
	"discord-rag-backend/model"
	knowledgebase "discord-rag-backend/service/knowledge-base"
	"discord-rag-backend/service/knowledge-base/etl/processor"
	"discord-rag-backend/utils"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultEmbeddingBatchSize = 10

	// 向量集合，schema见cmd/milvus-schema
	CollectionName = "knowledge_chunks"

	// text-embedding-3-small输出维度
	VectorDim = 1536
)

// 知识文件ETL处理器注册表
var etlProcessorRegistry []processor.ETLProcessor

var (
	embedder     embeddings.Embedder
	milvusClient *milvusclient.Client
)

// ETLMessage 文档处理消息，上传登记成功后投递
type ETLMessage struct {
	SourceID uint           `json:"source_id"`
	FilePath string         `json:"file_path"`
	FileType model.FileType `json:"file_type"`
}

// DeleteMessage 文档下线消息，触发向量库异步清理
type DeleteMessage struct {
	SourceID uint `json:"source_id"`
}

func init() {
	etlProcessorRegistry = []processor.ETLProcessor{
		processor.NewPDFETLProcessor(),
		processor.NewMarkdownETLProcessor(),
	}

	client, err := openai.New(
		openai.WithEmbeddingModel(config.Cfg.Model.EmbeddingModel),
		openai.WithToken(config.Cfg.Model.APIKey),
		openai.WithBaseURL(config.Cfg.Model.BaseURL),
		openai.WithHTTPClient(utils.DefaultHTTPClient()),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder client: %v", err))
	}

	embedder, err = embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(defaultEmbeddingBatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}

	milvusClient, err = milvusclient.New(context.Background(), &milvusclient.ClientConfig{
		Address: config.Cfg.Milvus.Endpoint,
		APIKey:  config.Cfg.Milvus.APIKey,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to create milvus client: %v", err))
	}
}

func HandleETLMessage(ctx context.Context, msg *primitive.MessageExt) error {
	var etlMessage ETLMessage
	if err := json.Unmarshal(msg.Body, &etlMessage); err != nil {
		return fmt.Errorf("failed to unmarshal message body: %v", err)
	}

	source, err := dao.GetDocumentByID(etlMessage.SourceID)
	if err != nil {
		return fmt.Errorf("failed to load document source %d: %v", etlMessage.SourceID, err)
	}

	// MQ重试的消息可能落在failed状态上，先收敛回processing
	if source.Status == model.StatusFailed {
		source, _, err = dao.StartDocumentProcessing(
			source.FileName, source.FilePath, source.ContentHash, source.FileSize, source.FileType)
		if err != nil {
			return fmt.Errorf("failed to restart document %d: %v", etlMessage.SourceID, err)
		}
	}
	if source.Status != model.StatusProcessing {
		slog.Info("Document not in processing state, skipping ETL",
			"source_id", source.ID,
			"status", source.Status,
		)
		return nil
	}

	if err := runETLPipeline(ctx, &etlMessage, source); err != nil {
		knowledgebase.FailProcessing(source.ID, err.Error(), map[string]any{
			"file_path": etlMessage.FilePath,
			"file_type": etlMessage.FileType,
		})
		return err
	}
	return nil
}

func runETLPipeline(ctx context.Context, etlMessage *ETLMessage, source *model.DocumentSource) error {
	start := time.Now()

	data, err := os.ReadFile(etlMessage.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read uploaded file: %v", err)
	}

	etlProcessor, err := findProcessor(etlMessage.FileType)
	if err != nil {
		return err
	}

	docs, err := etlProcessor.Split(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to split document: %v", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("document produced no chunks")
	}

	texts := make([]string, len(docs))
	chunks := make([]model.DocumentChunk, len(docs))
	totalTokens := 0
	totalCharacters := 0
	for i, doc := range docs {
		texts[i] = doc.PageContent
		tokens := llms.CountTokens(config.Cfg.Model.EmbeddingModel, doc.PageContent)
		totalTokens += tokens
		totalCharacters += len(doc.PageContent)
		chunks[i] = model.DocumentChunk{
			SourceID:   source.ID,
			ChunkIndex: i,
			Content:    doc.PageContent,
			TokenCount: tokens,
		}
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %v", err)
	}

	if err := insertVectors(ctx, source, texts, vectors); err != nil {
		return fmt.Errorf("failed to insert vectors: %v", err)
	}

	if err := dao.SaveDocumentChunks(chunks); err != nil {
		return fmt.Errorf("failed to save document chunks: %v", err)
	}

	durationMs := time.Since(start).Milliseconds()
	return knowledgebase.CompleteProcessing(source.ID, len(docs), totalTokens, totalCharacters, durationMs)
}

func findProcessor(fileType model.FileType) (processor.ETLProcessor, error) {
	for _, p := range etlProcessorRegistry {
		if p.CanProcess(fileType) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no processor found for file type: %s", fileType)
}

func insertVectors(ctx context.Context, source *model.DocumentSource, texts []string, vectors [][]float32) error {
	sourceIDs := make([]int64, len(texts))
	chunkIndexes := make([]int64, len(texts))
	fileNames := make([]string, len(texts))
	for i := range texts {
		sourceIDs[i] = int64(source.ID)
		chunkIndexes[i] = int64(i)
		fileNames[i] = source.FileName
	}

	_, err := milvusClient.Insert(ctx, milvusclient.NewColumnBasedInsertOption(CollectionName).
		WithColumns(
			column.NewColumnVarChar("text", texts),
			column.NewColumnFloatVector("vector", VectorDim, vectors),
			column.NewColumnInt64("source_id", sourceIDs),
			column.NewColumnInt64("chunk_index", chunkIndexes),
			column.NewColumnVarChar("file_name", fileNames),
		))
	return err
}

func HandleDeleteMessage(ctx context.Context, msg *primitive.MessageExt) error {
	var deleteMessage DeleteMessage
	if err := json.Unmarshal(msg.Body, &deleteMessage); err != nil {
		return fmt.Errorf("failed to unmarshal message body: %v", err)
	}

	_, err := milvusClient.Delete(ctx, milvusclient.NewDeleteOption(CollectionName).
		WithExpr(fmt.Sprintf("source_id == %d", deleteMessage.SourceID)))
	if err != nil {
		return fmt.Errorf("failed to delete vectors for source %d: %v", deleteMessage.SourceID, err)
	}

	slog.Info("Deleted vectors for deactivated document",
		"source_id", deleteMessage.SourceID,
	)
	return nil
}
