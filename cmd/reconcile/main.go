package main

import (
	"context"
	"log"
	"net/http"
	"runtime"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/api/handlers"
	"github.com/hirosato/go-bank-reconciliation/internal/api/middleware"
	"github.com/hirosato/go-bank-reconciliation/internal/api/response"
	envconfig "github.com/hirosato/go-bank-reconciliation/internal/common/config"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/matching"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/money"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/bigquery"
	ddbclient "github.com/hirosato/go-bank-reconciliation/internal/platform/dynamodb/client"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/dynamodb/repository"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/gcs"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/gemini"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/kms"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/pdf"
	"github.com/hirosato/go-bank-reconciliation/internal/platform/secrets"
)

var (
	apiHandler middleware.APIGatewayHandler
	logger     *zap.Logger
	config     *envconfig.Config
)

func init() {
	var err error
	config, err = envconfig.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load Env config: %v", err)
	}

	if config.IsProd() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx := context.Background()

	// Load AWS configuration
	awscfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.AWSRegion))
	if err != nil {
		logger.Fatal("Failed to load AWS config", zap.Error(err))
	}

	// Initialize repositories
	dbClient := ddbclient.NewDynamoDBClient(awscfg, logger)
	repos := repository.NewFactory(dbClient, config.DynamoDBTableName, logger)
	ledgerService := ledger.NewService(repos.LedgerRepository(), logger)

	// Statement archive
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		logger.Fatal("Failed to create Cloud Storage client", zap.Error(err))
	}
	archiver := gcs.NewArchiver(storageClient, config.ArchiveBucket, logger)

	opts := []reconciliation.Option{
		reconciliation.WithExtractor(pdf.NewExtractor(logger)),
		reconciliation.WithTimeouts(config.SessionTTL, config.ConfirmLockTTL, config.AssistedMatchTimeout),
		reconciliation.WithCandidateWindow(matching.Window{
			Amount: money.Amount(config.CandidateAmount),
			Days:   config.CandidateDays,
		}),
	}

	if config.AssistedMatchingEnabled() {
		provider := secrets.NewProvider(secretsmanager.NewFromConfig(awscfg), logger)
		apiKey, err := provider.SecretString(ctx, config.GeminiAPIKeySecretID)
		if err != nil {
			logger.Fatal("Failed to read Gemini API key", zap.Error(err))
		}
		matcher, err := gemini.NewMatcher(ctx, apiKey, config.GeminiModel, logger)
		if err != nil {
			logger.Fatal("Failed to create Gemini matcher", zap.Error(err))
		}
		opts = append(opts, reconciliation.WithStrategy(matcher))
	}

	if config.AuditExportEnabled() {
		bqClient, err := bq.NewClient(ctx, config.AuditBigQueryProject)
		if err != nil {
			logger.Fatal("Failed to create BigQuery client", zap.Error(err))
		}
		opts = append(opts, reconciliation.WithAuditSink(
			bigquery.NewExporter(bqClient, config.AuditBigQueryDataset, config.AuditBigQueryTable, logger)))
	}

	if config.AuditSigningEnabled() {
		opts = append(opts, reconciliation.WithAuditSigner(
			kms.NewSigner(awskms.NewFromConfig(awscfg), config.AuditSigningKeyID, logger)))
	}

	service := reconciliation.NewService(
		statement.NewParser(logger),
		ledgerService,
		repos.SessionStore(),
		archiver,
		repos.AuditRepository(),
		logger,
		opts...,
	)

	apiHandler = middleware.Chain(handlers.NewReconciliationHandler(service).Handle,
		middleware.NewLoggingMiddleware(),
		middleware.NewRecoveryMiddleware(),
		middleware.NewTenantMiddleware(),
	)

	logger.Info("reconciliation api initialized",
		zap.String("environment", config.Environment),
		zap.Bool("assistedMatching", config.AssistedMatchingEnabled()),
		zap.Bool("auditExport", config.AuditExportEnabled()),
		zap.Bool("auditSigning", config.AuditSigningEnabled()))
}

func handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	// Handle CORS preflight
	if request.HTTPMethod == http.MethodOptions {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    response.DefaultHeaders(),
		}, nil
	}

	if !config.IsProd() {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		logger.Debug("reconcile - Memory Status", zap.Uint64("MB", m.Alloc/1024/1024))
	}

	return apiHandler(ctx, logger, request)
}

func main() {
	defer logger.Sync() //nolint:errcheck
	lambda.Start(handler)
}
