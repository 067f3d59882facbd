// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docuquery-go/internal/chunker"
	"docuquery-go/internal/config"
	"docuquery-go/internal/handler"
	"docuquery-go/internal/middleware"
	"docuquery-go/internal/parser"
	"docuquery-go/internal/pipeline"
	"docuquery-go/internal/queue"
	"docuquery-go/internal/repository"
	"docuquery-go/internal/service"
	"docuquery-go/pkg/database"
	"docuquery-go/pkg/embedding"
	"docuquery-go/pkg/kafka"
	"docuquery-go/pkg/llm"
	"docuquery-go/pkg/log"
	"docuquery-go/pkg/retry"
	"docuquery-go/pkg/storage"
	"docuquery-go/pkg/vectorindex"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化基础设施
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	store, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}
	index, err := vectorindex.NewES(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatal("Elasticsearch 初始化失败", err)
	}
	defer index.Close()

	var notifier kafka.Notifier = kafka.NopNotifier{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		notifier = producer
	}

	// 4. 初始化 Repository 与队列
	jobRepo, err := repository.NewJobRepository(database.DB)
	if err != nil {
		log.Fatal("初始化任务仓库失败", err)
	}
	backoff := retry.Policy{
		MaxAttempts: cfg.Ingest.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Ingest.BackoffBaseMillis) * time.Millisecond,
		Jitter:      cfg.Ingest.BackoffJitter,
	}
	queueOpts := queue.Options{
		MaxAttempts:       cfg.Ingest.MaxAttempts,
		VisibilityTimeout: cfg.Ingest.VisibilityTimeout(),
		Backoff:           backoff,
		Repo:              jobRepo,
		Notifier:          notifier,
	}
	var jobQueue queue.Queue
	if cfg.Ingest.QueueDriver == "memory" {
		jobQueue = queue.NewMemory(queueOpts)
	} else {
		jobQueue = queue.NewRedis(database.RDB, queueOpts)
	}
	defer jobQueue.Close()

	// 5. 初始化 Service (依赖注入)
	engine, err := parser.NewEngine(cfg.Parser)
	if err != nil {
		log.Fatal("初始化文本提取引擎失败", err)
	}
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	ck := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)

	ingestService := service.NewIngestService(store, jobRepo, jobQueue)
	searchService := service.NewSearchService(embeddingClient, index, cfg.Retrieval.MaxContextChars)
	chatService := service.NewChatService(searchService, llmClient, cfg.Retrieval.TopK)

	// 6. 初始化摄取处理管道 (Processor) 并启动 worker 池
	processor := pipeline.NewProcessor(store, engine, ck, embeddingClient, index)
	pool := pipeline.NewWorkerPool(jobQueue, processor, cfg.Ingest.Workers, cfg.Ingest.JobTimeout())

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	pool.Start(workerCtx)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		upload := apiV1.Group("/upload")
		{
			upload.POST("/pdf", handler.NewUploadHandler(ingestService).UploadPDF)
		}
		jobs := apiV1.Group("/jobs")
		{
			jobs.GET("/:jobId", handler.NewJobHandler(ingestService).GetJobStatus)
		}
		chat := apiV1.Group("/chat")
		{
			chat.POST("", handler.NewChatHandler(chatService).Chat)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先停 HTTP 入口，再停 worker；未完成的任务会在可见性超时后重新投递
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	stopWorkers()
	pool.Wait()

	log.Info("服务已优雅关闭")
}
