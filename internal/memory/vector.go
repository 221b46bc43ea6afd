package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	chromem "github.com/philippgille/chromem-go"

	"loom/internal/llm"
)

// VectorConfig holds vector memory configuration.
type VectorConfig struct {
	// PersistPath, when non-empty, persists the store to disk under this
	// directory. Empty means in-memory only.
	PersistPath string

	// Collection is the chromem collection name. Defaults to "memory".
	Collection string

	// TopK is the number of messages Recall returns. Defaults to 5.
	TopK int

	// MinSimilarity filters recalled messages below this cosine similarity.
	MinSimilarity float32
}

// Vector is a similarity-search memory backed by chromem-go. Store embeds
// each message's content; Recall returns the nearest messages as user-role
// context.
type Vector struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     VectorConfig
	seq        atomic.Int64
}

// NewVector creates a vector memory. The embedding function converts text to
// a vector; pass nil to use chromem's default (an OpenAI-backed embedder
// configured from the environment).
func NewVector(config VectorConfig, embed chromem.EmbeddingFunc) (*Vector, error) {
	if config.Collection == "" {
		config.Collection = "memory"
	}
	if config.TopK <= 0 {
		config.TopK = 5
	}

	var db *chromem.DB
	var err error
	if config.PersistPath != "" {
		db, err = chromem.NewPersistentDB(filepath.Join(config.PersistPath, "memory.gob"), false)
		if err != nil {
			return nil, fmt.Errorf("create persistent store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Vector{db: db, collection: collection, config: config}, nil
}

// Recall returns the messages most similar to query, best match first.
func (v *Vector) Recall(ctx context.Context, query string) ([]llm.Message, error) {
	count := v.collection.Count()
	if count == 0 {
		return nil, nil
	}

	topK := v.config.TopK
	if topK > count {
		topK = count
	}

	results, err := v.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}

	var messages []llm.Message
	for _, r := range results {
		if r.Similarity < v.config.MinSimilarity {
			continue
		}
		role := r.Metadata["role"]
		if role == "" {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: r.Content})
	}
	return messages, nil
}

// Store embeds and indexes each message with non-empty content.
func (v *Vector) Store(ctx context.Context, messages []llm.Message) error {
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		id := fmt.Sprintf("msg-%d", v.seq.Add(1))
		err := v.collection.AddDocument(ctx, chromem.Document{
			ID:       id,
			Content:  msg.Content,
			Metadata: map[string]string{"role": msg.Role},
		})
		if err != nil {
			return fmt.Errorf("store message %s: %w", id, err)
		}
	}
	return nil
}

// Count returns the number of indexed messages.
func (v *Vector) Count() int {
	return v.collection.Count()
}
