package cortex

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EmbeddingProvider enumerates how query/insert embeddings are obtained.
type EmbeddingProvider string

const (
	EmbeddingNone             EmbeddingProvider = "none"
	EmbeddingExternalCallback EmbeddingProvider = "external-callback"
)

// GraphAdapterKind enumerates which graph mirror adapter, if any, backs
// the engine (§4.8).
type GraphAdapterKind string

const (
	GraphAdapterNone   GraphAdapterKind = "none"
	GraphAdapterCypher GraphAdapterKind = "cypher"
)

// Config is the environment configuration recognised by the core (§6),
// bound from flags/env/file via viper the way kart-io-sentinel-x's
// server configuration is loaded.
type Config struct {
	StorageEndpoint string `mapstructure:"storage.endpoint"`

	EmbeddingProvider  EmbeddingProvider `mapstructure:"embedding.provider"`
	EmbeddingDimension int               `mapstructure:"embedding.dimension"`

	GraphAdapter GraphAdapterKind `mapstructure:"graph.adapter"`

	ExtractFacts             bool `mapstructure:"extractFacts"`
	BeliefRevisionEnabled    bool `mapstructure:"beliefRevision.enabled"`
	BeliefRevisionSlotMatch  bool `mapstructure:"beliefRevision.slotMatching"`
	BeliefRevisionLLM        bool `mapstructure:"beliefRevision.llmResolution"`
	GraphMirror              bool `mapstructure:"graph.mirror"`

	VersionsPerMemory       int `mapstructure:"versions.perMemory"`
	ContextsMaxDepth        int `mapstructure:"contexts.maxDepth"`
	OrchestratorInflight    int `mapstructure:"orchestrator.inflightPerSpace"`
	OrchestratorQueue       int `mapstructure:"orchestrator.queue"`
}

// DefaultConfig mirrors the defaults stated throughout §5/§6.
func DefaultConfig() Config {
	return Config{
		StorageEndpoint:         ":memory:",
		EmbeddingProvider:       EmbeddingNone,
		EmbeddingDimension:      0,
		GraphAdapter:            GraphAdapterNone,
		ExtractFacts:            true,
		BeliefRevisionEnabled:   true,
		BeliefRevisionSlotMatch: true,
		BeliefRevisionLLM:       false,
		GraphMirror:             false,
		VersionsPerMemory:       10,
		ContextsMaxDepth:        16,
		OrchestratorInflight:    16,
		OrchestratorQueue:       256,
	}
}

// LoadConfig builds a viper instance bound to CORTEX_-prefixed
// environment variables and, optionally, pflag command-line flags,
// applying DefaultConfig first.
func LoadConfig(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	defaults := DefaultConfig()

	v.SetDefault("storage.endpoint", defaults.StorageEndpoint)
	v.SetDefault("embedding.provider", string(defaults.EmbeddingProvider))
	v.SetDefault("embedding.dimension", defaults.EmbeddingDimension)
	v.SetDefault("graph.adapter", string(defaults.GraphAdapter))
	v.SetDefault("extractFacts", defaults.ExtractFacts)
	v.SetDefault("beliefRevision.enabled", defaults.BeliefRevisionEnabled)
	v.SetDefault("beliefRevision.slotMatching", defaults.BeliefRevisionSlotMatch)
	v.SetDefault("beliefRevision.llmResolution", defaults.BeliefRevisionLLM)
	v.SetDefault("graph.mirror", defaults.GraphMirror)
	v.SetDefault("versions.perMemory", defaults.VersionsPerMemory)
	v.SetDefault("contexts.maxDepth", defaults.ContextsMaxDepth)
	v.SetDefault("orchestrator.inflightPerSpace", defaults.OrchestratorInflight)
	v.SetDefault("orchestrator.queue", defaults.OrchestratorQueue)

	v.SetEnvPrefix("CORTEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, err
		}
	}

	cfg := defaults
	cfg.StorageEndpoint = v.GetString("storage.endpoint")
	cfg.EmbeddingProvider = EmbeddingProvider(v.GetString("embedding.provider"))
	cfg.EmbeddingDimension = v.GetInt("embedding.dimension")
	cfg.GraphAdapter = GraphAdapterKind(v.GetString("graph.adapter"))
	cfg.ExtractFacts = v.GetBool("extractFacts")
	cfg.BeliefRevisionEnabled = v.GetBool("beliefRevision.enabled")
	cfg.BeliefRevisionSlotMatch = v.GetBool("beliefRevision.slotMatching")
	cfg.BeliefRevisionLLM = v.GetBool("beliefRevision.llmResolution")
	cfg.GraphMirror = v.GetBool("graph.mirror")
	cfg.VersionsPerMemory = v.GetInt("versions.perMemory")
	cfg.ContextsMaxDepth = v.GetInt("contexts.maxDepth")
	cfg.OrchestratorInflight = v.GetInt("orchestrator.inflightPerSpace")
	cfg.OrchestratorQueue = v.GetInt("orchestrator.queue")
	return cfg, nil
}
