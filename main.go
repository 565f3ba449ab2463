// Command forge indexes a code and documentation corpus, retrieves
// token-budgeted context for tasks, orchestrates multi-backend AI
// runs with cost accounting, and drives repository change workflows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/custodia-labs/forge-cli/internal/adapters/driven/ai"
	configfile "github.com/custodia-labs/forge-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/forge-cli/internal/adapters/driven/corpus/filesystem"
	"github.com/custodia-labs/forge-cli/internal/adapters/driven/repository/github"
	storagememory "github.com/custodia-labs/forge-cli/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/forge-cli/internal/adapters/driven/storage/sqlite"
	vectormemory "github.com/custodia-labs/forge-cli/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/forge-cli/internal/adapters/driving/cli"
	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
	"github.com/custodia-labs/forge-cli/internal/core/services"
	"github.com/custodia-labs/forge-cli/internal/logger"
)

// defaultPricing is used when the config carries no [pricing.*] tables.
// Rates are USD per million tokens.
var defaultPricing = domain.PricingTable{
	"anthropic": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"openai":    {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"bedrock":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"ollama":    {InputPerMTok: 0, OutputPerMTok: 0},
	"mock":      {InputPerMTok: 0, OutputPerMTok: 0},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := configfile.NewConfigStore(os.Getenv("FORGE_CONFIG_DIR"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sessionID := uuid.New().String()

	corpusRoot := cfg.GetString("corpus.root")
	if corpusRoot == "" {
		corpusRoot = "."
	}
	source := filesystem.NewSource(corpusRoot)
	defer source.Close()

	embedding, err := ai.CreateEmbeddingService(ai.EmbeddingSettings{
		Provider: cfg.GetString("embedding.provider"),
		APIKey:   secret(cfg, "embedding.api_key", "FORGE_EMBEDDING_API_KEY"),
		BaseURL:  cfg.GetString("embedding.base_url"),
		Model:    cfg.GetString("embedding.model"),
	})
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}
	defer embedding.Close()

	providers, err := ai.CreateProviders(providerSettings(cfg))
	if err != nil {
		return err
	}
	defer func() {
		for _, p := range providers {
			p.Close()
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.close()

	pricing := cfg.PricingTable()
	if len(pricing) == 0 {
		pricing = defaultPricing
	}
	ledger := services.NewCostLedger(sessionID, pricing, stores.ledger)

	chunkStore := storagememory.NewChunkStore()
	vectors := vectormemory.NewVectorIndex()

	indexer := services.NewIndexerService(
		source, chunkStore, vectors, embedding, stores.history, sessionID,
		services.IndexerConfig{
			ChunkSize:    cfg.GetInt("index.chunk_size"),
			ChunkOverlap: cfg.GetInt("index.chunk_overlap"),
		},
	)
	retrieval := services.NewRetrievalService(chunkStore, vectors, embedding,
		services.RetrievalConfig{
			SemanticWeight: cfg.GetFloat("retrieval.semantic_weight"),
			LexicalWeight:  cfg.GetFloat("retrieval.lexical_weight"),
		},
	)
	assembler := services.NewContextService(retrieval, source,
		services.AssemblerConfig{
			TokenBudget: cfg.GetInt("context.token_budget"),
			CodeShare:   cfg.GetFloat("context.code_share"),
		},
	)
	orchestrator := services.NewOrchestratorService(
		providers, assembler, ledger, nil, stores.history, sessionID,
		services.OrchestratorConfig{},
	)

	var workflow driving.WorkflowService
	if repo := repositoryService(ctx, cfg); repo != nil {
		workflow = services.NewWorkflowService(
			repo, stores.workflow, stores.history, sessionID,
			cfg.GetString("repository.base_branch"),
		)
	} else {
		logger.Debug("Repository not configured, workflow commands disabled")
	}

	cli.SetServices(cli.Services{
		Retrieval:    retrieval,
		Context:      assembler,
		Orchestrator: orchestrator,
		Workflow:     workflow,
		Indexer:      indexer,
		Ledger:       ledger,
	})

	return cli.Execute(ctx)
}

// providerSettings reads providers.enabled (comma-separated adapter
// names) and the per-provider tables. An empty list falls back to the
// mock backend so the CLI works out of the box.
func providerSettings(cfg driven.ConfigStore) []ai.ProviderSettings {
	enabled := cfg.GetString("providers.enabled")
	if enabled == "" {
		enabled = "mock"
	}

	var settings []ai.ProviderSettings
	for _, name := range strings.Split(enabled, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		prefix := "providers." + name + "."
		settings = append(settings, ai.ProviderSettings{
			Name:    name,
			APIKey:  secret(cfg, prefix+"api_key", strings.ToUpper(name)+"_API_KEY"),
			BaseURL: cfg.GetString(prefix + "base_url"),
			Model:   cfg.GetString(prefix + "model"),
			Region:  cfg.GetString(prefix + "region"),
		})
	}
	return settings
}

// repositoryService builds the GitHub adapter when repository.owner
// and repository.repo are configured, and returns nil otherwise.
func repositoryService(ctx context.Context, cfg driven.ConfigStore) driven.RepositoryService {
	owner := cfg.GetString("repository.owner")
	repo := cfg.GetString("repository.repo")
	if owner == "" || repo == "" {
		return nil
	}

	client := github.NewClient(ctx, secret(cfg, "repository.token", "GITHUB_TOKEN"))
	svc, err := github.NewService(client, github.Config{
		Owner:      owner,
		Repo:       repo,
		BaseBranch: cfg.GetString("repository.base_branch"),
	})
	if err != nil {
		logger.Warn("Repository configuration invalid: %v", err)
		return nil
	}
	return svc
}

// secret reads a config key, falling back to an environment variable.
func secret(cfg driven.ConfigStore, key, env string) string {
	if v := cfg.GetString(key); v != "" {
		return v
	}
	return os.Getenv(env)
}

// appStores bundles the persistence backends behind the service layer.
type appStores struct {
	workflow driven.WorkflowStore
	ledger   driven.LedgerStore
	history  driven.HistoryStore
	closer   func() error
}

func (s appStores) close() {
	if s.closer != nil {
		s.closer()
	}
}

// openStores selects sqlite persistence unless storage.driver is set
// to "memory".
func openStores(cfg driven.ConfigStore) (appStores, error) {
	if cfg.GetString("storage.driver") == "memory" {
		return appStores{
			workflow: storagememory.NewWorkflowStore(),
			ledger:   storagememory.NewLedgerStore(),
			history:  storagememory.NewHistoryStore(),
		}, nil
	}

	store, err := sqlite.NewStore(cfg.GetString("storage.data_dir"))
	if err != nil {
		return appStores{}, fmt.Errorf("open storage: %w", err)
	}
	return appStores{
		workflow: store.WorkflowStore(),
		ledger:   store.LedgerStore(),
		history:  store.HistoryStore(),
	}, nil
}
