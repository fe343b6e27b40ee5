package cache

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Known Actors -- deployer/sniper/trusted wallet registries
// ---------------------------------------------------------------------------

// ActorsConfig locates the registry files.
type ActorsConfig struct {
	DeployersFile string `yaml:"deployers_file"`
	SnipersFile   string `yaml:"snipers_file"`
	TrustedFile   string `yaml:"trusted_file"`
	RefreshSecs   int    `yaml:"refresh_secs"`
}

// DefaultActorsConfig returns the standard registry locations.
func DefaultActorsConfig() ActorsConfig {
	return ActorsConfig{
		DeployersFile: "data/known_deployers.txt",
		SnipersFile:   "data/known_snipers.txt",
		TrustedFile:   "data/trusted_wallets.txt",
		RefreshSecs:   3600,
	}
}

// KnownActors holds the wallet sets the hot path consults on every launch.
// Load replaces each set atomically; a partially read file never leaves a
// half-updated set behind.
type KnownActors struct {
	config ActorsConfig

	mu        sync.RWMutex
	deployers map[string]struct{}
	snipers   map[string]struct{}
	trusted   map[string]struct{}
	loadedAt  time.Time

	checks atomic.Int64
}

// NewKnownActors creates empty registries. Call Load to populate.
func NewKnownActors(config ActorsConfig) *KnownActors {
	return &KnownActors{
		config:    config,
		deployers: make(map[string]struct{}),
		snipers:   make(map[string]struct{}),
		trusted:   make(map[string]struct{}),
	}
}

// Config returns the registry file locations.
func (k *KnownActors) Config() ActorsConfig {
	return k.config
}

// Load reads all three registry files. Sets whose file reads cleanly are
// replaced; the first failure is returned so callers can flag degraded
// known-actor coverage.
func (k *KnownActors) Load() error {
	var firstErr error

	load := func(path string, dst *map[string]struct{}) {
		set, err := loadWalletSet(path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Warn().Err(err).Str("file", path).Msg("actors: registry load failed")
			return
		}
		k.mu.Lock()
		*dst = set
		k.mu.Unlock()
	}

	load(k.config.DeployersFile, &k.deployers)
	load(k.config.SnipersFile, &k.snipers)
	load(k.config.TrustedFile, &k.trusted)

	k.mu.Lock()
	k.loadedAt = time.Now()
	d, s, tr := len(k.deployers), len(k.snipers), len(k.trusted)
	k.mu.Unlock()

	log.Info().
		Int("deployers", d).
		Int("snipers", s).
		Int("trusted", tr).
		Msg("actors: registries loaded")
	return firstErr
}

// loadWalletSet reads one address per line, skipping blanks and comments.
func loadWalletSet(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	set := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return set, nil
}

// IsDeployer reports whether the wallet is a known bad deployer.
func (k *KnownActors) IsDeployer(address string) bool {
	k.checks.Add(1)
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.deployers[address]
	return ok
}

// IsSniper reports whether the wallet is a known sniper.
func (k *KnownActors) IsSniper(address string) bool {
	k.checks.Add(1)
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.snipers[address]
	return ok
}

// IsTrusted reports whether the wallet has a verified positive record.
func (k *KnownActors) IsTrusted(address string) bool {
	k.checks.Add(1)
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.trusted[address]
	return ok
}

// AddDeployer records a newly identified bad deployer at runtime.
func (k *KnownActors) AddDeployer(address string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.deployers[address] = struct{}{}
}

// AddSniper records a newly identified sniper at runtime.
func (k *KnownActors) AddSniper(address string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.snipers[address] = struct{}{}
}

// AddTrusted records a newly verified wallet at runtime.
func (k *KnownActors) AddTrusted(address string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.trusted[address] = struct{}{}
}

// ActorStats is a point-in-time registry snapshot.
type ActorStats struct {
	Deployers int       `json:"deployers"`
	Snipers   int       `json:"snipers"`
	Trusted   int       `json:"trusted"`
	Checks    int64     `json:"checks"`
	LoadedAt  time.Time `json:"loaded_at"`
}

func (k *KnownActors) Stats() ActorStats {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return ActorStats{
		Deployers: len(k.deployers),
		Snipers:   len(k.snipers),
		Trusted:   len(k.trusted),
		Checks:    k.checks.Load(),
		LoadedAt:  k.loadedAt,
	}
}

// Empty reports whether no registry has any entries.
func (k *KnownActors) Empty() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.deployers) == 0 && len(k.snipers) == 0 && len(k.trusted) == 0
}
