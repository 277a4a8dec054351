package app

import (
	"context"
	"math"
	"strings"

	"docchat/internal/ai"
	"docchat/internal/vectorstore"
)

const (
	defaultTopK        = 5
	defaultHistoryTopK = 3
	sourcePreviewRunes = 200

	noHistoryText   = "No previous conversation found."
	noDocumentsText = "No relevant documents found."

	systemPrompt = "You are a helpful AI assistant. Answer the user's question using only the provided context. " +
		"If the context does not contain the information needed, say so honestly. Be concise and accurate."
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Completer interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

type Source struct {
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	IsPublic   bool    `json:"is_public"`
}

// Composition is everything one chat turn sends to the model.
type Composition struct {
	Messages []ai.ChatMessage
	Prompt   string
	Sources  []Source
	// QueryEmbedding is reused when the turn is remembered.
	QueryEmbedding []float32
}

// Retriever builds prompts from a tenant's visible chunks and remembered turns.
type Retriever struct {
	vectors     vectorstore.Store
	embedder    Embedder
	topK        int
	historyTopK int
}

func NewRetriever(vectors vectorstore.Store, embedder Embedder, topK, historyTopK int) *Retriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	if historyTopK <= 0 {
		historyTopK = defaultHistoryTopK
	}
	return &Retriever{
		vectors:     vectors,
		embedder:    embedder,
		topK:        topK,
		historyTopK: historyTopK,
	}
}

func (r *Retriever) Compose(ctx context.Context, tenant, message string) (*Composition, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, vectorstore.ErrTenantRequired
	}
	query, err := r.embedder.Embed(ctx, message)
	if err != nil {
		return nil, err
	}

	turns, err := r.vectors.SearchTurns(ctx, tenant, query, r.historyTopK)
	if err != nil {
		return nil, err
	}
	matches, err := r.vectors.SearchChunks(ctx, tenant, query, r.topK)
	if err != nil {
		return nil, err
	}

	history := make([]string, 0, len(turns))
	for _, t := range turns {
		history = append(history, t.Content)
	}
	docs := make([]string, 0, len(matches))
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, m.Content)
		sources = append(sources, Source{
			Source:     m.Source,
			Content:    truncateRunes(m.Content, sourcePreviewRunes),
			Similarity: math.Round(m.Similarity*1000) / 1000,
			IsPublic:   m.IsPublic,
		})
	}

	prompt := renderPrompt(history, docs, message)
	return &Composition{
		Messages: []ai.ChatMessage{
			{Role: ai.RoleSystem, Content: systemPrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
		Prompt:         prompt,
		Sources:        sources,
		QueryEmbedding: query,
	}, nil
}

func renderPrompt(history, docs []string, message string) string {
	mem := noHistoryText
	if len(history) > 0 {
		mem = strings.Join(history, "\n")
	}
	pdf := noDocumentsText
	if len(docs) > 0 {
		pdf = strings.Join(docs, "\n")
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	b.WriteString(mem)
	b.WriteString("\n\nRelevant documents:\n")
	b.WriteString(pdf)
	b.WriteString("\n\nUser: ")
	b.WriteString(message)
	b.WriteString("\nAnswer:")
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
