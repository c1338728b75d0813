package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/prefeitura-rio/searsia-node/internal/config"
	"github.com/prefeitura-rio/searsia-node/internal/search/archive"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/storage"
	"github.com/prefeitura-rio/searsia-node/internal/typesense"
)

const (
	WhatArchive   = "archive"
	WhatResources = "resources"
)

type DumpConfig struct {
	What    string
	Private bool
	Output  string
}

type DumpStats struct {
	Total     int64
	StartTime time.Time
}

// Dumper escreve o conteúdo dos índices do nó, um objeto JSON por linha
type Dumper struct {
	config *DumpConfig
	appCfg *config.Config
	stats  *DumpStats
}

func main() {
	what := flag.String("what", WhatArchive, "O que exportar: archive ou resources")
	private := flag.Bool("private", false, "Inclui parâmetros privados dos resources")
	output := flag.String("out", "", "Arquivo de saída (default: stdout)")

	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Erro ao carregar configuração: %v", err)
	}

	dumper := NewDumper(&DumpConfig{What: *what, Private: *private, Output: *output}, cfg)

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Erro ao criar %s: %v", *output, err)
		}
		defer f.Close()
		w = f
	}

	if err := dumper.Run(context.Background(), w); err != nil {
		log.Fatalf("Erro no dump: %v", err)
	}
	log.Printf("Dump concluído: %d objetos em %v", dumper.stats.Total, time.Since(dumper.stats.StartTime).Round(time.Millisecond))
}

func NewDumper(cfg *DumpConfig, appCfg *config.Config) *Dumper {
	return &Dumper{
		config: cfg,
		appCfg: appCfg,
		stats:  &DumpStats{StartTime: time.Now()},
	}
}

func (d *Dumper) Run(ctx context.Context, w io.Writer) error {
	db, err := storage.Open(d.appCfg.IndexFile(".db"), registry.Schema, archive.Schema)
	if err != nil {
		return err
	}
	defer db.Close()

	out := bufio.NewWriter(w)
	defer out.Flush()

	switch d.config.What {
	case WhatArchive:
		var arch archive.Archive = archive.NewSQLiteArchive(db)
		if d.appCfg.ArchiveBackend == config.ArchiveTypesense {
			arch = typesense.NewClient(d.appCfg, "searsia_"+d.appCfg.IndexName())
		}
		return arch.DumpAll(ctx, func(stored json.RawMessage) error {
			return d.writeLine(out, stored)
		})
	case WhatResources:
		return d.dumpResources(ctx, registry.NewSQLiteStore(db), out)
	default:
		return fmt.Errorf("valor inválido para -what: %q", d.config.What)
	}
}

func (d *Dumper) dumpResources(ctx context.Context, store registry.Store, out io.Writer) error {
	records, err := store.LoadAll(ctx)
	if err != nil && records == nil {
		return err
	}
	if err != nil {
		log.Printf("Registros ignorados: %v", err)
	}
	for _, rec := range records {
		if !d.config.Private {
			rec.Resource = rec.Resource.Public()
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := d.writeLine(out, data); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dumper) writeLine(out io.Writer, data []byte) error {
	if _, err := fmt.Fprintf(out, "%s\n", data); err != nil {
		return err
	}
	d.stats.Total++
	return nil
}
