package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edusight/observation-service/internal/platform/logger"
)

// defaultHierarchy is the entity-type chain used when no per-state override
// is configured, top level first.
var defaultHierarchy = []string{"state", "district", "block", "cluster", "school"}

// HierarchyProvider yields the ordered entity-type levels beneath a state,
// the state itself included.
type HierarchyProvider interface {
	SubEntityTypes(ctx context.Context, stateID string) ([]string, error)
}

type hierarchyConfig struct {
	Default []string            `yaml:"default"`
	States  map[string][]string `yaml:"states"`
}

type configHierarchyProvider struct {
	cfg hierarchyConfig
	log *logger.Logger
}

// NewHierarchyProvider loads per-state hierarchy overrides from the YAML
// file at SUBENTITY_CONFIG_PATH. A missing path is not an error; the
// built-in default chain applies everywhere.
func NewHierarchyProvider(baseLog *logger.Logger) (HierarchyProvider, error) {
	provider := &configHierarchyProvider{
		cfg: hierarchyConfig{Default: defaultHierarchy},
		log: baseLog.With("service", "HierarchyProvider"),
	}

	path := strings.TrimSpace(os.Getenv("SUBENTITY_CONFIG_PATH"))
	if path == "" {
		return provider, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subentity config %s: %w", path, err)
	}
	var cfg hierarchyConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse subentity config %s: %w", path, err)
	}
	if len(cfg.Default) > 0 {
		provider.cfg.Default = cfg.Default
	}
	provider.cfg.States = cfg.States
	provider.log.Info("Loaded sub-entity hierarchy config",
		"path", path,
		"state_overrides", len(cfg.States),
	)
	return provider, nil
}

func (p *configHierarchyProvider) SubEntityTypes(ctx context.Context, stateID string) ([]string, error) {
	if strings.TrimSpace(stateID) == "" {
		return nil, fmt.Errorf("state id required")
	}
	if chain, ok := p.cfg.States[stateID]; ok && len(chain) > 0 {
		return append([]string(nil), chain...), nil
	}
	return append([]string(nil), p.cfg.Default...), nil
}
