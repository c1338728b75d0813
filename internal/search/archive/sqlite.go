package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prefeitura-rio/searsia-node/internal/search/query"
	"github.com/prefeitura-rio/searsia-node/internal/search/ranking"
)

// Schema cria a tabela de hits e o índice FTS5 sincronizado por triggers
const Schema = `
CREATE TABLE IF NOT EXISTS hits (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    terms       TEXT NOT NULL,
    stored      TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS hits_fts USING fts5(
    title, terms, content='hits', content_rowid='rowid',
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS hits_ai AFTER INSERT ON hits BEGIN
    INSERT INTO hits_fts(rowid, title, terms) VALUES (new.rowid, new.title, new.terms);
END;
CREATE TRIGGER IF NOT EXISTS hits_ad AFTER DELETE ON hits BEGIN
    INSERT INTO hits_fts(hits_fts, rowid, title, terms) VALUES('delete', old.rowid, old.title, old.terms);
END;
CREATE TRIGGER IF NOT EXISTS hits_au AFTER UPDATE ON hits BEGIN
    INSERT INTO hits_fts(hits_fts, rowid, title, terms) VALUES('delete', old.rowid, old.title, old.terms);
    INSERT INTO hits_fts(rowid, title, terms) VALUES (new.rowid, new.title, new.terms);
END;
`

// SQLiteArchive usa FTS5 com bm25 ponderado por campo
type SQLiteArchive struct {
	db         *sql.DB
	normalizer *ranking.Normalizer
}

// NewSQLiteArchive usa um banco já aberto com Schema aplicado
func NewSQLiteArchive(db *sql.DB) *SQLiteArchive {
	return &SQLiteArchive{db: db, normalizer: ranking.NewNormalizer(0)}
}

// Upsert grava todos os documentos em uma única transação
func (a *SQLiteArchive) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("iniciar transação: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO hits (id, title, terms, stored, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, terms = excluded.terms,
			stored = excluded.stored, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparar upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, d.ID, d.Title, d.Terms, string(d.Stored), now); err != nil {
			return fmt.Errorf("upsert hit %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Query busca qualquer um dos termos da consulta em título e texto
func (a *SQLiteArchive) Query(ctx context.Context, q string, topN int) ([]Match, error) {
	match := matchExpression(q)
	if match == "" || topN <= 0 {
		return nil, nil
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT h.stored, bm25(hits_fts, ?, ?) AS rank
		FROM hits_fts f
		JOIN hits h ON h.rowid = f.rowid
		WHERE hits_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, TitleWeight, TermsWeight, match, topN)
	if err != nil {
		return nil, fmt.Errorf("buscar hits: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var stored string
		var rank float64
		if err := rows.Scan(&stored, &rank); err != nil {
			return nil, fmt.Errorf("ler hit: %w", err)
		}
		out = append(out, Match{Stored: json.RawMessage(stored), Score: a.normalizer.BM25(rank)})
	}
	return out, rows.Err()
}

// matchExpression monta "t1" OR "t2" a partir dos tokens da consulta
func matchExpression(q string) string {
	tokens := query.Tokenize(query.RemoveAccents(q))
	quoted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func (a *SQLiteArchive) DumpAll(ctx context.Context, fn func(stored json.RawMessage) error) error {
	rows, err := a.db.QueryContext(ctx, `SELECT stored FROM hits ORDER BY updated_at, id`)
	if err != nil {
		return fmt.Errorf("listar hits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stored string
		if err := rows.Scan(&stored); err != nil {
			return err
		}
		if err := fn(json.RawMessage(stored)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close não fecha o banco, que pertence a quem o abriu
func (a *SQLiteArchive) Close() error { return nil }

var _ Archive = (*SQLiteArchive)(nil)
