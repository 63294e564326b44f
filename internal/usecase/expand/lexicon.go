package expand

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/helicase-ai/evidex/internal/config"
)

// Lexicon holds the query-understanding lookup tables. All tables are
// immutable after load; an empty table turns the corresponding expansion
// rule into a no-op.
type Lexicon struct {
	Abbreviations map[string]string
	General       map[string][]string
	Protocol      map[string][]string
	Families      map[string][]string
}

// synonymsFile is the on-disk shape of the synonyms table.
type synonymsFile struct {
	General  map[string][]string `yaml:"general"`
	Protocol map[string][]string `yaml:"protocol"`
}

// LoadLexicon reads the lookup tables from the configured paths.
// A missing or unreadable file is logged and leaves its table empty;
// loading never fails.
func LoadLexicon(cfg config.LexiconConfig, logger *zap.Logger) *Lexicon {
	lex := &Lexicon{
		Abbreviations: map[string]string{},
		General:       map[string][]string{},
		Protocol:      map[string][]string{},
		Families:      map[string][]string{},
	}

	if cfg.AbbreviationsPath != "" {
		if err := loadYAML(cfg.AbbreviationsPath, &lex.Abbreviations); err != nil {
			logger.Warn("Abbreviation table unavailable, rule disabled",
				zap.String("path", cfg.AbbreviationsPath), zap.Error(err))
		}
	}

	if cfg.SynonymsPath != "" {
		var syn synonymsFile
		if err := loadYAML(cfg.SynonymsPath, &syn); err != nil {
			logger.Warn("Synonym tables unavailable, rules disabled",
				zap.String("path", cfg.SynonymsPath), zap.Error(err))
		} else {
			if syn.General != nil {
				lex.General = syn.General
			}
			if syn.Protocol != nil {
				lex.Protocol = syn.Protocol
			}
		}
	}

	if cfg.FamiliesPath != "" {
		if err := loadYAML(cfg.FamiliesPath, &lex.Families); err != nil {
			logger.Warn("Product family table unavailable, rule disabled",
				zap.String("path", cfg.FamiliesPath), zap.Error(err))
		}
	}

	logger.Info("Lexicon loaded",
		zap.Int("abbreviations", len(lex.Abbreviations)),
		zap.Int("general_synonyms", len(lex.General)),
		zap.Int("protocol_synonyms", len(lex.Protocol)),
		zap.Int("families", len(lex.Families)))
	return lex
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
