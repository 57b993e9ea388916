package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/premunia/leadline/internal/apperr"
	"github.com/premunia/leadline/internal/auth"
	"github.com/premunia/leadline/internal/cache"
	"github.com/premunia/leadline/internal/crypto"
)

const (
	allCacheKey  = "settings:all"
	genCacheKey  = "settings:gen"
	maxKeyLength = 100
)

// privateKeys never appear in public reads and cannot be written through Set.
var privateKeys = map[string]bool{SMTPKey: true}

// IsPrivate reports whether key is hidden from the public settings API.
func IsPrivate(key string) bool { return privateKeys[key] }

// Repository is the storage the Service needs. *Store implements it.
type Repository interface {
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)
	Get(ctx context.Context, key string) (*Setting, error)
	Upsert(ctx context.Context, key string, value json.RawMessage, updatedBy *string) (*Setting, error)
	UpsertMany(ctx context.Context, values map[string]json.RawMessage, updatedBy *string) error
	InsertDefault(ctx context.Context, key string, value json.RawMessage) (bool, error)
}

// Service exposes site settings and the SMTP configuration.
type Service struct {
	repo     Repository
	cache    *cache.Cache
	cacheTTL time.Duration
	cipher   *crypto.Cipher
}

// NewService creates a settings service. cache and cipher may be nil.
func NewService(repo Repository, c *cache.Cache, ttl time.Duration, cipher *crypto.Cipher) *Service {
	return &Service{repo: repo, cache: c, cacheTTL: ttl, cipher: cipher}
}

// GetAll returns the public key/value map. Cached copies are keyed by the
// write generation, so a load that started before a write can only fill an
// entry nobody reads any more.
func (s *Service) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	var (
		all map[string]json.RawMessage
		err error
	)
	gen, genErr := s.cache.Generation(ctx, genCacheKey)
	if genErr != nil {
		slog.Warn("settings cache generation unavailable", "error", genErr)
		all, err = s.loadPublic(ctx)
	} else {
		key := fmt.Sprintf("%s:%d", allCacheKey, gen)
		all, err = cache.GetOrLoadJSON(ctx, s.cache, key, s.cacheTTL, s.loadPublic)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if all == nil {
		all = map[string]json.RawMessage{}
	}
	return all, nil
}

func (s *Service) loadPublic(ctx context.Context) (map[string]json.RawMessage, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for k := range all {
		if IsPrivate(k) {
			delete(all, k)
		}
	}
	return all, nil
}

// Get returns one public setting.
func (s *Service) Get(ctx context.Context, key string) (*Setting, error) {
	if IsPrivate(key) {
		return nil, apperr.NotFound("Setting not found")
	}
	st, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("Setting not found")
		}
		return nil, apperr.Internal(err)
	}
	return st, nil
}

// Set upserts a public setting on behalf of id.
func (s *Service) Set(ctx context.Context, key string, value json.RawMessage, id *auth.Identity) (*Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > maxKeyLength {
		return nil, apperr.Validation("Invalid setting key")
	}
	if IsPrivate(key) {
		return nil, apperr.Validation("This setting cannot be written here")
	}
	if len(value) == 0 {
		return nil, apperr.Validation("Value is required")
	}
	if !json.Valid(value) {
		return nil, apperr.Validation("Value must be valid JSON")
	}

	st, err := s.repo.Upsert(ctx, key, value, actor(id))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.invalidate(ctx)
	return st, nil
}

// SetMany upserts several public settings at once. Every key is checked
// before anything is written, and the writes share one transaction.
func (s *Service) SetMany(ctx context.Context, values map[string]json.RawMessage, id *auth.Identity) (map[string]json.RawMessage, error) {
	if len(values) == 0 {
		return nil, apperr.Validation("At least one setting is required")
	}
	clean := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" || len(key) > maxKeyLength {
			return nil, apperr.Validation("Invalid setting key")
		}
		if IsPrivate(key) {
			return nil, apperr.Validation(fmt.Sprintf("Setting %q cannot be written here", key))
		}
		if len(value) == 0 || !json.Valid(value) {
			return nil, apperr.Validation(fmt.Sprintf("Value for %q must be valid JSON", key))
		}
		clean[key] = value
	}

	if err := s.repo.UpsertMany(ctx, clean, actor(id)); err != nil {
		return nil, apperr.Internal(err)
	}
	s.invalidate(ctx)
	return s.GetAll(ctx)
}

// GetSMTP returns the SMTP config without its password. An unset config
// returns an empty view.
func (s *Service) GetSMTP(ctx context.Context) (*SMTPView, error) {
	cfg, err := s.loadSMTP(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if cfg == nil {
		return &SMTPView{}, nil
	}
	return &SMTPView{
		Host:        cfg.Host,
		Port:        cfg.Port,
		User:        cfg.User,
		FromEmail:   cfg.FromEmail,
		FromName:    cfg.FromName,
		NotifyEmail: cfg.NotifyEmail,
		HasPassword: cfg.Password != "",
	}, nil
}

// SetSMTP stores the SMTP config. An empty password keeps the one already
// stored.
func (s *Service) SetSMTP(ctx context.Context, in SMTPConfig, id *auth.Identity) (*SMTPView, error) {
	in.Host = strings.TrimSpace(in.Host)
	in.User = strings.TrimSpace(in.User)
	in.FromEmail = strings.TrimSpace(in.FromEmail)
	in.FromName = strings.TrimSpace(in.FromName)
	in.NotifyEmail = strings.TrimSpace(in.NotifyEmail)
	if in.Port == 0 {
		in.Port = defaultSMTPPort
	}

	if in.Password == "" {
		prev, err := s.loadSMTP(ctx)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if prev != nil {
			in.Password = prev.Password
		}
	} else {
		sealed, err := s.cipher.Seal(in.Password)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		in.Password = sealed
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if _, err := s.repo.Upsert(ctx, SMTPKey, raw, actor(id)); err != nil {
		return nil, apperr.Internal(err)
	}
	return s.GetSMTP(ctx)
}

// SMTPForSending returns the SMTP config with the password decrypted, or
// nil if none is stored.
func (s *Service) SMTPForSending(ctx context.Context) (*SMTPConfig, error) {
	cfg, err := s.loadSMTP(ctx)
	if err != nil || cfg == nil {
		return nil, err
	}
	pw, err := s.cipher.Open(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("opening smtp password: %w", err)
	}
	cfg.Password = pw
	return cfg, nil
}

// loadSMTP reads the stored config with the password still sealed.
func (s *Service) loadSMTP(ctx context.Context) (*SMTPConfig, error) {
	st, err := s.repo.Get(ctx, SMTPKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var cfg SMTPConfig
	if err := json.Unmarshal(st.Value, &cfg); err != nil {
		return nil, fmt.Errorf("decoding smtp config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = defaultSMTPPort
	}
	return &cfg, nil
}

// SeedDefaults inserts the default landing page text without touching keys
// that already have a value. It returns the keys it inserted.
func (s *Service) SeedDefaults(ctx context.Context) ([]string, error) {
	var inserted []string
	for key, text := range Defaults {
		raw, err := json.Marshal(text)
		if err != nil {
			return nil, err
		}
		ok, err := s.repo.InsertDefault(ctx, key, raw)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted = append(inserted, key)
		}
	}
	if len(inserted) > 0 {
		s.invalidate(ctx)
	}
	return inserted, nil
}

// invalidate moves readers to a fresh generation. It runs after the write
// has committed.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx, genCacheKey); err != nil {
		slog.Warn("settings cache invalidation failed", "error", err)
	}
}

func actor(id *auth.Identity) *string {
	if id == nil || id.UserID == "" {
		return nil
	}
	uid := id.UserID
	return &uid
}
