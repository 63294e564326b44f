package expand

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/config"
	"github.com/helicase-ai/evidex/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadLexicon(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LexiconConfig{
		AbbreviationsPath: writeFile(t, dir, "abbreviations.yaml", "HA: Hyaluronic Acid\nIFU: Instructions For Use\n"),
		SynonymsPath: writeFile(t, dir, "synonyms.yaml",
			"general:\n  effect: [result, outcome]\nprotocol:\n  sessions: [treatments, visits]\n"),
		FamiliesPath: writeFile(t, dir, "families.yaml", "Revivelle: [Revivelle Soft, Revivelle Deep]\n"),
	}

	lex := LoadLexicon(cfg, zap.NewNop())

	if lex.Abbreviations["HA"] != "Hyaluronic Acid" {
		t.Errorf("abbreviations not loaded: %v", lex.Abbreviations)
	}
	if len(lex.General["effect"]) != 2 {
		t.Errorf("general synonyms not loaded: %v", lex.General)
	}
	if len(lex.Protocol["sessions"]) != 2 {
		t.Errorf("protocol synonyms not loaded: %v", lex.Protocol)
	}
	if len(lex.Families["Revivelle"]) != 2 {
		t.Errorf("families not loaded: %v", lex.Families)
	}
}

func TestLoadLexicon_MissingFilesDegrade(t *testing.T) {
	cfg := config.LexiconConfig{
		AbbreviationsPath: "/nonexistent/abbreviations.yaml",
		SynonymsPath:      "/nonexistent/synonyms.yaml",
		FamiliesPath:      "/nonexistent/families.yaml",
	}

	lex := LoadLexicon(cfg, zap.NewNop())

	if len(lex.Abbreviations) != 0 || len(lex.General) != 0 || len(lex.Families) != 0 {
		t.Errorf("expected empty tables, got %+v", lex)
	}

	// The expander must still work on empty tables.
	e := New(lex, 5, 0.05, zap.NewNop())
	got := e.Expand(domain.Query{Text: "HA contraindications"})
	if len(got.Expansions) != 1 {
		t.Errorf("expected single expansion, got %v", got.Expansions)
	}
}

func TestLoadLexicon_EmptyPathsSkipped(t *testing.T) {
	lex := LoadLexicon(config.LexiconConfig{}, zap.NewNop())
	if len(lex.Abbreviations) != 0 {
		t.Errorf("expected empty lexicon, got %+v", lex)
	}
}
