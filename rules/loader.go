package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfigMissing = errors.New("rule file missing")
	ErrConfigInvalid = errors.New("rule file invalid")
	ErrNotLoaded     = errors.New("rules not loaded")
)

// File names resolved under the rules directory
const (
	EvidenceTypesFile     = "evidence_types.yaml"
	EvidenceChainsFile    = "evidence_chains.yaml"
	CardSlotTemplatesFile = "card_slot_templates.yaml"
	BusinessConfigFile    = "business_config.yaml"
)

// Paths locates the rule files
type Paths struct {
	EvidenceTypes     string
	EvidenceChains    string
	CardSlotTemplates string
	// BusinessConfig is optional; an absent file keeps the built-in tables
	BusinessConfig string
}

// PathsIn returns the conventional file locations under dir
func PathsIn(dir string) Paths {
	return Paths{
		EvidenceTypes:     filepath.Join(dir, EvidenceTypesFile),
		EvidenceChains:    filepath.Join(dir, EvidenceChainsFile),
		CardSlotTemplates: filepath.Join(dir, CardSlotTemplatesFile),
		BusinessConfig:    filepath.Join(dir, BusinessConfigFile),
	}
}

// Loader owns the current Snapshot. Reloads build a fresh snapshot and swap
// it in atomically so readers never observe a partial update.
type Loader struct {
	paths    Paths
	validate *validator.Validate
	current  atomic.Pointer[Snapshot]
	group    singleflight.Group
}

// NewLoader creates a loader; call Load before reading
func NewLoader(paths Paths) *Loader {
	return &Loader{
		paths:    paths,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Load reads every rule file and installs the snapshot
func (l *Loader) Load() error {
	_, err, _ := l.group.Do("all", func() (interface{}, error) {
		types, err := l.loadTypes()
		if err != nil {
			return nil, err
		}
		chains, err := l.loadChains()
		if err != nil {
			return nil, err
		}
		templates, err := l.loadTemplates()
		if err != nil {
			return nil, err
		}
		business, err := l.loadBusiness()
		if err != nil {
			return nil, err
		}
		l.current.Store(newSnapshot(types, chains, templates, business))
		return nil, nil
	})
	return err
}

// Snapshot returns the current snapshot or nil when nothing is loaded
func (l *Loader) Snapshot() *Snapshot {
	return l.current.Load()
}

// Current returns the current snapshot or ErrNotLoaded
func (l *Loader) Current() (*Snapshot, error) {
	s := l.current.Load()
	if s == nil {
		return nil, ErrNotLoaded
	}
	return s, nil
}

// ReloadEvidenceTypes re-reads the evidence type file only
func (l *Loader) ReloadEvidenceTypes() error {
	return l.reload("types", func(old *Snapshot) (*Snapshot, error) {
		types, err := l.loadTypes()
		if err != nil {
			return nil, err
		}
		return newSnapshot(types, old.chains, old.templates, old.business), nil
	})
}

// ReloadEvidenceChains re-reads the chain file only
func (l *Loader) ReloadEvidenceChains() error {
	return l.reload("chains", func(old *Snapshot) (*Snapshot, error) {
		chains, err := l.loadChains()
		if err != nil {
			return nil, err
		}
		return newSnapshot(old.types, chains, old.templates, old.business), nil
	})
}

// ReloadCardSlotTemplates re-reads the card-slot template file only
func (l *Loader) ReloadCardSlotTemplates() error {
	return l.reload("templates", func(old *Snapshot) (*Snapshot, error) {
		templates, err := l.loadTemplates()
		if err != nil {
			return nil, err
		}
		return newSnapshot(old.types, old.chains, templates, old.business), nil
	})
}

// ReloadAll re-reads every file
func (l *Loader) ReloadAll() error {
	return l.Load()
}

func (l *Loader) reload(key string, build func(old *Snapshot) (*Snapshot, error)) error {
	_, err, _ := l.group.Do(key, func() (interface{}, error) {
		old := l.current.Load()
		if old == nil {
			return nil, l.Load()
		}
		next, err := build(old)
		if err != nil {
			return nil, err
		}
		l.current.Store(next)
		return nil, nil
	})
	return err
}

func (l *Loader) loadTypes() (*typeSet, error) {
	var f evidenceTypesFile
	if err := l.decode(l.paths.EvidenceTypes, &f); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(f.EvidenceTypes))
	for _, t := range f.EvidenceTypes {
		if seen[t.TypeName] {
			return nil, fmt.Errorf("%w: %s: duplicate evidence type %q", ErrConfigInvalid, l.paths.EvidenceTypes, t.TypeName)
		}
		seen[t.TypeName] = true
	}
	return newTypeSet(f.EvidenceTypes), nil
}

func (l *Loader) loadChains() (*chainSet, error) {
	var f evidenceChainsFile
	if err := l.decode(l.paths.EvidenceChains, &f); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(f.EvidenceChains))
	for _, c := range f.EvidenceChains {
		if seen[c.ChainID] {
			return nil, fmt.Errorf("%w: %s: duplicate chain %q", ErrConfigInvalid, l.paths.EvidenceChains, c.ChainID)
		}
		seen[c.ChainID] = true
	}
	return &chainSet{chains: f.EvidenceChains}, nil
}

func (l *Loader) loadTemplates() (*templateSet, error) {
	var f cardSlotTemplatesFile
	if err := l.decode(l.paths.CardSlotTemplates, &f); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(f.Templates))
	for _, t := range f.Templates {
		if seen[t.TemplateID] {
			return nil, fmt.Errorf("%w: %s: duplicate template %q", ErrConfigInvalid, l.paths.CardSlotTemplates, t.TemplateID)
		}
		seen[t.TemplateID] = true
	}
	return newTemplateSet(f.Templates), nil
}

func (l *Loader) loadBusiness() (*businessSet, error) {
	var cfg BusinessConfig
	if l.paths.BusinessConfig == "" {
		return newBusinessSet(cfg), nil
	}
	if err := l.decode(l.paths.BusinessConfig, &cfg); err != nil {
		if errors.Is(err, ErrConfigMissing) {
			return newBusinessSet(BusinessConfig{}), nil
		}
		return nil, err
	}
	return newBusinessSet(cfg), nil
}

func (l *Loader) decode(path string, dst interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
		return fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}
	if err := l.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}
	return nil
}

var defaultLoader atomic.Pointer[Loader]

// Init loads the rule files and installs the process-wide loader
func Init(paths Paths) (*Loader, error) {
	l := NewLoader(paths)
	if err := l.Load(); err != nil {
		return nil, err
	}
	defaultLoader.Store(l)
	return l, nil
}

// Default returns the process-wide loader installed by Init, or nil
func Default() *Loader {
	return defaultLoader.Load()
}
