package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prefeitura-rio/searsia-node/internal/models"
)

// Schema cria a tabela de resources
const Schema = `
CREATE TABLE IF NOT EXISTS resources (
    id          TEXT PRIMARY KEY,
    record      TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);
`

// Store é o armazenamento durável dos registros de resources
type Store interface {
	Save(ctx context.Context, rec models.StoredResource) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]models.StoredResource, error)
}

// SQLiteStore guarda cada resource como um registro JSON
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore usa um banco já aberto com Schema aplicado
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Save(ctx context.Context, rec models.StoredResource) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serializar resource %s: %w", rec.Resource.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resources (id, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		rec.Resource.ID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("gravar resource %s: %w", rec.Resource.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remover resource %s: %w", id, err)
	}
	return nil
}

// LoadAll devolve todos os registros legíveis; registros corrompidos são
// ignorados e reportados no erro agregado.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]models.StoredResource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM resources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listar resources: %w", err)
	}
	defer rows.Close()

	var out []models.StoredResource
	var garbled []error
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("ler resource: %w", err)
		}
		var rec models.StoredResource
		if err := json.Unmarshal([]byte(record), &rec); err != nil {
			garbled = append(garbled, fmt.Errorf("registro %s corrompido: %w", id, err))
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, errors.Join(garbled...)
}

// readDescriptorFile lê um descritor gravado em disco; ausência não é erro
func readDescriptorFile(path string) (*models.Descriptor, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var desc models.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("arquivo %s inválido: %w", path, err)
	}
	return &desc, nil
}

func writeDescriptorFile(path string, desc models.Descriptor) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var _ Store = (*SQLiteStore)(nil)
