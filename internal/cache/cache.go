// Package cache guarda resultados de scan endereçados por (repositório, commit).
package cache

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/lockwhz/ai-scan-service/models"
)

// Store é a persistência usada pelo cache (implementada por db.RDSStore).
type Store interface {
	GetCacheEntry(ctx context.Context, repoHash, commitSHA string) (*models.CacheEntry, error)
	UpsertCacheEntry(ctx context.Context, entry models.CacheEntry) error
}

// RepoHash é o base64 de "owner/repo" sem os caracteres '+', '=' e '/'.
func RepoHash(ref models.RepositoryRef) string {
	enc := base64.StdEncoding.EncodeToString([]byte(ref.FullName()))
	return strings.NewReplacer("+", "", "=", "", "/", "").Replace(enc)
}

type Cache struct {
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// Get devolve nil, nil quando o commit ainda não foi analisado.
func (c *Cache) Get(ctx context.Context, ref models.RepositoryRef, commitSHA string) (*models.CacheEntry, error) {
	entry, err := c.store.GetCacheEntry(ctx, RepoHash(ref), commitSHA)
	if err != nil {
		return nil, fmt.Errorf("cache get %s@%s: %w", ref.FullName(), commitSHA, err)
	}
	return entry, nil
}

// Put é um upsert; chamar de novo com a mesma chave substitui a entrada.
func (c *Cache) Put(ctx context.Context, ref models.RepositoryRef, commitSHA string, entry models.CacheEntry) error {
	entry.RepoHash = RepoHash(ref)
	entry.CommitSHA = commitSHA
	if err := c.store.UpsertCacheEntry(ctx, entry); err != nil {
		return fmt.Errorf("cache put %s@%s: %w: %v", ref.FullName(), commitSHA, models.ErrPersistenceFailed, err)
	}
	return nil
}
