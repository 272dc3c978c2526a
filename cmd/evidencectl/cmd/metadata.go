package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/medical-evidence-rag/internal/bootstrap"
	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
)

type metadataRecord struct {
	DocumentID   string `yaml:"document_id"`
	Title        string `yaml:"title"`
	URL          string `yaml:"url"`
	DOI          string `yaml:"doi"`
	TopicName    string `yaml:"topic_name"`
	QualityGrade string `yaml:"quality_grade"`
}

type metadataFile struct {
	Documents []metadataRecord `yaml:"documents"`
}

type metadataUpserter interface {
	Upsert(ctx context.Context, documentID string, meta domain.DocumentMetadata) error
}

func newMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage document-level metadata in Postgres",
	}
	cmd.AddCommand(newMetadataImportCmd())
	return cmd
}

func newMetadataImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Upsert document metadata from a YAML or JSON file",
		Long: `Upsert title, URL, DOI, topic and quality grade per document.

The file holds a "documents" list:

  documents:
    - document_id: CD000001
      title: Statins for the primary prevention of cardiovascular disease
      doi: 10.1002/14651858.CD004816.pub5
      topic_name: Heart and circulation
      quality_grade: A`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			records, err := parseMetadataFile(raw)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d documents parsed, nothing written\n", len(records))
				return nil
			}

			repo, db, err := bootstrap.OpenMetadataRepository(cmd.Context(), loadConfig(), nil)
			if err != nil {
				return err
			}
			defer db.Close()
			return importMetadata(cmd.Context(), cmd.OutOrStdout(), repo, records)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and validate the file without writing")
	return cmd
}

func parseMetadataFile(raw []byte) ([]metadataRecord, error) {
	var file metadataFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse metadata file: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Documents))
	for i, rec := range file.Documents {
		id := strings.TrimSpace(rec.DocumentID)
		if id == "" {
			return nil, fmt.Errorf("parse metadata file: entry %d has no document_id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("parse metadata file: duplicate document_id %q", id)
		}
		seen[id] = struct{}{}
		file.Documents[i].DocumentID = id
	}
	return file.Documents, nil
}

func importMetadata(ctx context.Context, out io.Writer, repo metadataUpserter, records []metadataRecord) error {
	for _, rec := range records {
		meta := domain.DocumentMetadata{
			Title:        strings.TrimSpace(rec.Title),
			URL:          strings.TrimSpace(rec.URL),
			DOI:          strings.TrimSpace(rec.DOI),
			TopicName:    strings.TrimSpace(rec.TopicName),
			QualityGrade: strings.ToUpper(strings.TrimSpace(rec.QualityGrade)),
		}
		if err := repo.Upsert(ctx, rec.DocumentID, meta); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.DocumentID, err)
		}
		slog.Debug("metadata_upserted", "document_id", rec.DocumentID)
	}
	fmt.Fprintf(out, "%d documents imported\n", len(records))
	return nil
}
