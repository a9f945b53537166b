package domain

// Defaults shared by config, CLI and pipelines.
const (
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 200
	DefaultTopK            = 10
	DefaultEmbeddingModel  = "text-embedding-3-large"
	DefaultDimensions      = 3072
	DefaultGenerationModel = "gpt-4.1"

	// KeyPrefix namespaces every key written to a shared Redis/Valkey instance.
	KeyPrefix = "ragmail:"
)
