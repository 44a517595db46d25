package knowledge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/emvidros/atendente/internal/knowledge"
	"github.com/emvidros/atendente/internal/testutil"
)

const testDim = 8

func chunkSet(sourceID string, contents ...string) []knowledge.Chunk {
	chunks := make([]knowledge.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = knowledge.Chunk{
			ID:        knowledge.ChunkID(sourceID, i),
			SourceID:  sourceID,
			Index:     i,
			Content:   content,
			Embedding: testutil.DeterministicVector(content, testDim),
			Metadata: map[string]string{
				knowledge.MetaTitle:      "Página " + sourceID,
				knowledge.MetaURL:        sourceID,
				knowledge.MetaSourceType: knowledge.SourceTypeWebsite,
			},
		}
	}
	return chunks
}

func TestStorePostgres(t *testing.T) {
	handle := testutil.StartPostgres(t)
	ctx := context.Background()
	store := knowledge.NewStore(handle.Pool, testDim, testutil.NewNopLogger())

	t.Run("replace and search", func(t *testing.T) {
		const source = "https://emvidros.com.br/produtos"
		chunks := chunkSet(source, "box de vidro temperado", "espelho sob medida", "vidro laminado")

		if err := store.ReplaceSource(ctx, source, "hash-v1", chunks); err != nil {
			t.Fatalf("ReplaceSource: %v", err)
		}

		// The exact embedding of a stored chunk must rank that chunk first.
		query := testutil.DeterministicVector("espelho sob medida", testDim)
		results, err := store.Search(ctx, query, knowledge.WithTopK(3))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) == 0 {
			t.Fatal("no results")
		}
		if results[0].Chunk.Content != "espelho sob medida" {
			t.Errorf("top result = %q", results[0].Chunk.Content)
		}
		if results[0].Similarity < 0.99 {
			t.Errorf("identical vector similarity = %f", results[0].Similarity)
		}
		for i := 1; i < len(results); i++ {
			if results[i].Similarity > results[i-1].Similarity {
				t.Errorf("results not ordered by similarity at %d", i)
			}
		}
		if results[0].Chunk.Metadata[knowledge.MetaTitle] == "" {
			t.Errorf("metadata not round-tripped: %+v", results[0].Chunk.Metadata)
		}
	})

	t.Run("top-k bounds results", func(t *testing.T) {
		query := testutil.DeterministicVector("box de vidro temperado", testDim)
		results, err := store.Search(ctx, query, knowledge.WithTopK(1))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("got %d results with k=1", len(results))
		}
	})

	t.Run("metadata filter", func(t *testing.T) {
		const source = "file:/context/precos.txt"
		chunks := chunkSet(source, "tabela de preços")
		for i := range chunks {
			chunks[i].Metadata[knowledge.MetaSourceType] = knowledge.SourceTypeFile
		}
		if err := store.ReplaceSource(ctx, source, "hash-f1", chunks); err != nil {
			t.Fatalf("ReplaceSource: %v", err)
		}

		query := testutil.DeterministicVector("tabela de preços", testDim)
		results, err := store.Search(ctx, query,
			knowledge.WithTopK(10),
			knowledge.WithFilter(knowledge.MetaSourceType, knowledge.SourceTypeFile))
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		for _, r := range results {
			if r.Chunk.Metadata[knowledge.MetaSourceType] != knowledge.SourceTypeFile {
				t.Errorf("filter leaked chunk %s with type %q",
					r.Chunk.ID, r.Chunk.Metadata[knowledge.MetaSourceType])
			}
		}
		if len(results) == 0 {
			t.Error("filter returned nothing")
		}
	})

	t.Run("replace swaps the whole chunk set", func(t *testing.T) {
		const source = "https://emvidros.com.br/servicos"
		if err := store.ReplaceSource(ctx, source, "v1",
			chunkSet(source, "instalação", "manutenção", "reparo")); err != nil {
			t.Fatalf("ReplaceSource v1: %v", err)
		}
		if err := store.ReplaceSource(ctx, source, "v2",
			chunkSet(source, "instalação de box")); err != nil {
			t.Fatalf("ReplaceSource v2: %v", err)
		}

		count, err := store.Count(ctx, nil)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		// 3 (produtos) + 1 (precos) + 1 (servicos v2).
		if count != 5 {
			t.Errorf("total chunks = %d, want 5", count)
		}

		hash, err := store.SourceHash(ctx, source)
		if err != nil {
			t.Fatalf("SourceHash: %v", err)
		}
		if hash != "v2" {
			t.Errorf("hash = %q, want v2", hash)
		}
	})

	t.Run("unknown source hash", func(t *testing.T) {
		_, err := store.SourceHash(ctx, "https://emvidros.com.br/nunca-ingerido")
		if !errors.Is(err, knowledge.ErrSourceUnknown) {
			t.Fatalf("error = %v, want ErrSourceUnknown", err)
		}
	})

	t.Run("dimension mismatch rejected before write", func(t *testing.T) {
		bad := chunkSet("https://emvidros.com.br/ruim", "conteúdo")
		bad[0].Embedding = make([]float32, testDim+1)
		if err := store.ReplaceSource(ctx, bad[0].SourceID, "h", bad); err == nil {
			t.Fatal("ReplaceSource accepted a wrong-dimension embedding")
		}
		if _, err := store.SourceHash(ctx, bad[0].SourceID); !errors.Is(err, knowledge.ErrSourceUnknown) {
			t.Errorf("rejected source left an ingestion record: %v", err)
		}
	})

	t.Run("query dimension validated", func(t *testing.T) {
		if _, err := store.Search(ctx, make([]float32, testDim+2)); err == nil {
			t.Fatal("Search accepted a wrong-dimension query vector")
		}
	})

	t.Run("delete source", func(t *testing.T) {
		const source = "https://emvidros.com.br/removido"
		if err := store.ReplaceSource(ctx, source, "h", chunkSet(source, "temporário")); err != nil {
			t.Fatalf("ReplaceSource: %v", err)
		}
		if err := store.DeleteSource(ctx, source); err != nil {
			t.Fatalf("DeleteSource: %v", err)
		}
		if _, err := store.SourceHash(ctx, source); !errors.Is(err, knowledge.ErrSourceUnknown) {
			t.Errorf("hash survives delete: %v", err)
		}
	})

	t.Run("delete source type clears website sources only", func(t *testing.T) {
		const webSource = "https://emvidros.com.br/produtos"

		removed, err := store.DeleteSourceType(ctx, knowledge.SourceTypeWebsite)
		if err != nil {
			t.Fatalf("DeleteSourceType: %v", err)
		}
		if removed == 0 {
			t.Error("no website chunks removed")
		}

		webCount, err := store.Count(ctx, map[string]string{knowledge.MetaSourceType: knowledge.SourceTypeWebsite})
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if webCount != 0 {
			t.Errorf("%d website chunks remain after clear", webCount)
		}
		if _, err := store.SourceHash(ctx, webSource); !errors.Is(err, knowledge.ErrSourceUnknown) {
			t.Errorf("website ingestion record survives clear: %v", err)
		}

		// File sources are untouched, record included.
		fileCount, err := store.Count(ctx, map[string]string{knowledge.MetaSourceType: knowledge.SourceTypeFile})
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if fileCount == 0 {
			t.Error("file chunks vanished with the website clear")
		}
		if _, err := store.SourceHash(ctx, "file:/context/precos.txt"); err != nil {
			t.Errorf("file ingestion record lost: %v", err)
		}
	})
}
