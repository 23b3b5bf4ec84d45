package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type ProviderConfig struct {
	BaseURL        string   `json:"base_url"`
	Model          string   `json:"model"`
	Models         []string `json:"models"`
	APIKey         string   `json:"api_key"`
	EmbeddingModel string   `json:"embedding_model"`
	// EmbeddingBaseURL and EmbeddingAPIKey point at a separate embeddings endpoint
	// when the chat endpoint has none (Anthropic's compat layer does not).
	EmbeddingBaseURL string  `json:"embedding_base_url"`
	EmbeddingAPIKey  string  `json:"embedding_api_key"`
	TimeoutMS        int     `json:"timeout_ms"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	MaxRetries       int     `json:"max_retries"`
}

type ChatConfig struct {
	DefaultTemplate   string `json:"default_template"`
	SystemPrompt      string `json:"system_prompt"`
	HistoryTokenLimit int    `json:"history_token_limit"`
	TemplatesFile     string `json:"templates_file"`
}

// RetrievalConfig tunes the chunk → embed → top-k pipeline shared by repo, devops and documents.
type RetrievalConfig struct {
	ChunkSize         int     `json:"chunk_size"`
	ChunkOverlap      int     `json:"chunk_overlap"`
	TopK              int     `json:"top_k"`
	MinScore          float64 `json:"min_score"`
	ContextTokenLimit int     `json:"context_token_limit"`
	// Embedder is "remote" (provider /embeddings) or "hash" (offline, deterministic).
	Embedder  string `json:"embedder"`
	HashDim   int    `json:"hash_dim"`
	BatchSize int    `json:"batch_size"`
}

type RepoConfig struct {
	Extensions   []string `json:"extensions"`
	MaxFileBytes int      `json:"max_file_bytes"`
	MaxFiles     int      `json:"max_files"`
	Workers      int      `json:"workers"`
}

type DevOpsConfig struct {
	Organization string `json:"organization"`
	Project      string `json:"project"`
	PAT          string `json:"pat"`
	BaseURL      string `json:"base_url"`
	APIVersion   string `json:"api_version"`
	WikiID       string `json:"wiki_id"`
	WikiParent   string `json:"wiki_parent"`
	WorkItemType string `json:"work_item_type"`
	AreaPath     string `json:"area_path"`
}

type MailConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	User          string `json:"user"`
	Password      string `json:"password"`
	SenderFilter  string `json:"sender_filter"`
	TicketBaseURL string `json:"ticket_base_url"`
}

type AuthConfig struct {
	// Users maps a login name to its bcrypt hash.
	Users           map[string]string `json:"users"`
	JWTSecret       string            `json:"jwt_secret"`
	TokenTTLMinutes int               `json:"token_ttl_minutes"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
}

type StorageConfig struct {
	BaseDir       string `json:"base_dir"`
	LogMaxMB      int    `json:"log_max_mb"`
	CacheTTLHours int    `json:"cache_ttl_hours"`
}

type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Chat      ChatConfig      `json:"chat"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Repo      RepoConfig      `json:"repo"`
	DevOps    DevOpsConfig    `json:"devops"`
	Mail      MailConfig      `json:"mail"`
	Auth      AuthConfig      `json:"auth"`
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
}

type fileProviderConfig struct {
	BaseURL          string   `json:"base_url"`
	Model            string   `json:"model"`
	Models           []string `json:"models"`
	APIKey           string   `json:"api_key"`
	EmbeddingModel   string   `json:"embedding_model"`
	EmbeddingBaseURL string   `json:"embedding_base_url"`
	EmbeddingAPIKey  string   `json:"embedding_api_key"`
	TimeoutMS        int      `json:"timeout_ms"`
	Temperature      *float64 `json:"temperature"`
	MaxTokens        int      `json:"max_tokens"`
	MaxRetries       *int     `json:"max_retries"`
}

type fileRetrievalConfig struct {
	ChunkSize         int      `json:"chunk_size"`
	ChunkOverlap      *int     `json:"chunk_overlap"`
	TopK              int      `json:"top_k"`
	MinScore          *float64 `json:"min_score"`
	ContextTokenLimit int      `json:"context_token_limit"`
	Embedder          string   `json:"embedder"`
	HashDim           int      `json:"hash_dim"`
	BatchSize         int      `json:"batch_size"`
}

type fileConfig struct {
	Provider  *fileProviderConfig  `json:"provider"`
	Chat      *ChatConfig          `json:"chat"`
	Retrieval *fileRetrievalConfig `json:"retrieval"`
	Repo      *RepoConfig          `json:"repo"`
	DevOps    *DevOpsConfig        `json:"devops"`
	Mail      *MailConfig          `json:"mail"`
	Auth      *AuthConfig          `json:"auth"`
	Server    *ServerConfig        `json:"server"`
	Storage   *StorageConfig       `json:"storage"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL: DefaultBaseURL,
			Model:   DefaultModel,
			Models: []string{
				"claude-3-7-sonnet-20250219",
				"claude-3-opus-20240229",
				"claude-3-sonnet-20240229",
				"claude-3-haiku-20240307",
			},
			EmbeddingModel: "text-embedding-3-small",
			TimeoutMS:      DefaultTimeoutMS,
			Temperature:    DefaultTemperature,
			MaxTokens:      DefaultMaxTokens,
			MaxRetries:     2,
		},
		Chat: ChatConfig{
			DefaultTemplate:   DefaultTemplate,
			HistoryTokenLimit: DefaultHistoryTokenLimit,
		},
		Retrieval: RetrievalConfig{
			ChunkSize:         DefaultChunkSize,
			ChunkOverlap:      DefaultChunkOverlap,
			TopK:              DefaultTopK,
			ContextTokenLimit: DefaultContextTokenLimit,
			Embedder:          "remote",
			HashDim:           DefaultHashDim,
			BatchSize:         DefaultEmbedBatchSize,
		},
		Repo: RepoConfig{
			Extensions: []string{
				".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".cs", ".rb", ".php",
				".sql", ".md", ".txt", ".yaml", ".yml", ".json", ".toml", ".sh", ".html", ".css",
			},
			MaxFileBytes: DefaultRepoMaxFileBytes,
			MaxFiles:     DefaultRepoMaxFiles,
			Workers:      DefaultRepoWorkers,
		},
		DevOps: DevOpsConfig{
			BaseURL:      DefaultDevOpsBaseURL,
			APIVersion:   DefaultDevOpsAPIVersion,
			WorkItemType: DefaultWorkItemType,
		},
		Mail: MailConfig{
			Host:          DefaultMailHost,
			Port:          DefaultMailPort,
			SenderFilter:  DefaultSenderFilter,
			TicketBaseURL: DefaultTicketBaseURL,
		},
		Auth: AuthConfig{
			TokenTTLMinutes: DefaultTokenTTLMinutes,
		},
		Server: ServerConfig{Addr: DefaultServerAddr},
		Storage: StorageConfig{
			BaseDir:       "~/.ayudapo",
			LogMaxMB:      20,
			CacheTTLHours: 168,
		},
	}
}

// Load merges defaults, the global file, the project file and the environment, in that order.
// A .env file in the working directory is loaded first; variables already set win.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("AYUDAPO_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".ayudapo", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"ayudapo.config.json",
		".ayudapo/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Chat != nil {
		cfg.Chat = mergeChat(cfg.Chat, *fc.Chat)
	}
	if fc.Retrieval != nil {
		cfg.Retrieval = mergeRetrieval(cfg.Retrieval, *fc.Retrieval)
	}
	if fc.Repo != nil {
		cfg.Repo = mergeRepo(cfg.Repo, *fc.Repo)
	}
	if fc.DevOps != nil {
		cfg.DevOps = mergeDevOps(cfg.DevOps, *fc.DevOps)
	}
	if fc.Mail != nil {
		cfg.Mail = mergeMail(cfg.Mail, *fc.Mail)
	}
	if fc.Auth != nil {
		cfg.Auth = mergeAuth(cfg.Auth, *fc.Auth)
	}
	if fc.Server != nil && strings.TrimSpace(fc.Server.Addr) != "" {
		cfg.Server.Addr = fc.Server.Addr
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
}

func mergeProvider(base ProviderConfig, override fileProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if strings.TrimSpace(override.EmbeddingModel) != "" {
		base.EmbeddingModel = override.EmbeddingModel
	}
	if strings.TrimSpace(override.EmbeddingBaseURL) != "" {
		base.EmbeddingBaseURL = override.EmbeddingBaseURL
	}
	if strings.TrimSpace(override.EmbeddingAPIKey) != "" {
		base.EmbeddingAPIKey = override.EmbeddingAPIKey
	}
	if len(override.Models) > 0 {
		base.Models = append([]string(nil), override.Models...)
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.Temperature != nil {
		base.Temperature = *override.Temperature
	}
	if override.MaxTokens > 0 {
		base.MaxTokens = override.MaxTokens
	}
	if override.MaxRetries != nil {
		base.MaxRetries = *override.MaxRetries
	}
	return base
}

func mergeChat(base ChatConfig, override ChatConfig) ChatConfig {
	if strings.TrimSpace(override.DefaultTemplate) != "" {
		base.DefaultTemplate = override.DefaultTemplate
	}
	if strings.TrimSpace(override.SystemPrompt) != "" {
		base.SystemPrompt = override.SystemPrompt
	}
	if override.HistoryTokenLimit > 0 {
		base.HistoryTokenLimit = override.HistoryTokenLimit
	}
	if strings.TrimSpace(override.TemplatesFile) != "" {
		base.TemplatesFile = override.TemplatesFile
	}
	return base
}

func mergeRetrieval(base RetrievalConfig, override fileRetrievalConfig) RetrievalConfig {
	if override.ChunkSize > 0 {
		base.ChunkSize = override.ChunkSize
	}
	if override.ChunkOverlap != nil {
		base.ChunkOverlap = *override.ChunkOverlap
	}
	if override.TopK > 0 {
		base.TopK = override.TopK
	}
	if override.MinScore != nil {
		base.MinScore = *override.MinScore
	}
	if override.ContextTokenLimit > 0 {
		base.ContextTokenLimit = override.ContextTokenLimit
	}
	if strings.TrimSpace(override.Embedder) != "" {
		base.Embedder = override.Embedder
	}
	if override.HashDim > 0 {
		base.HashDim = override.HashDim
	}
	if override.BatchSize > 0 {
		base.BatchSize = override.BatchSize
	}
	return base
}

func mergeRepo(base RepoConfig, override RepoConfig) RepoConfig {
	if len(override.Extensions) > 0 {
		base.Extensions = append([]string(nil), override.Extensions...)
	}
	if override.MaxFileBytes > 0 {
		base.MaxFileBytes = override.MaxFileBytes
	}
	if override.MaxFiles > 0 {
		base.MaxFiles = override.MaxFiles
	}
	if override.Workers > 0 {
		base.Workers = override.Workers
	}
	return base
}

func mergeDevOps(base DevOpsConfig, override DevOpsConfig) DevOpsConfig {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&base.Organization, override.Organization)
	set(&base.Project, override.Project)
	set(&base.PAT, override.PAT)
	set(&base.BaseURL, override.BaseURL)
	set(&base.APIVersion, override.APIVersion)
	set(&base.WikiID, override.WikiID)
	set(&base.WikiParent, override.WikiParent)
	set(&base.WorkItemType, override.WorkItemType)
	set(&base.AreaPath, override.AreaPath)
	return base
}

func mergeMail(base MailConfig, override MailConfig) MailConfig {
	if strings.TrimSpace(override.Host) != "" {
		base.Host = override.Host
	}
	if override.Port > 0 {
		base.Port = override.Port
	}
	if strings.TrimSpace(override.User) != "" {
		base.User = override.User
	}
	if override.Password != "" {
		base.Password = override.Password
	}
	if strings.TrimSpace(override.SenderFilter) != "" {
		base.SenderFilter = override.SenderFilter
	}
	if strings.TrimSpace(override.TicketBaseURL) != "" {
		base.TicketBaseURL = override.TicketBaseURL
	}
	return base
}

func mergeAuth(base AuthConfig, override AuthConfig) AuthConfig {
	if len(override.Users) > 0 {
		base.Users = make(map[string]string, len(override.Users))
		for name, hash := range override.Users {
			base.Users[name] = hash
		}
	}
	if override.JWTSecret != "" {
		base.JWTSecret = override.JWTSecret
	}
	if override.TokenTTLMinutes > 0 {
		base.TokenTTLMinutes = override.TokenTTLMinutes
	}
	return base
}

func mergeStorage(base StorageConfig, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.BaseDir) != "" {
		base.BaseDir = override.BaseDir
	}
	if override.LogMaxMB > 0 {
		base.LogMaxMB = override.LogMaxMB
	}
	if override.CacheTTLHours > 0 {
		base.CacheTTLHours = override.CacheTTLHours
	}
	return base
}

func normalize(cfg *Config) error {
	def := Default()
	if strings.TrimSpace(cfg.Provider.BaseURL) == "" {
		cfg.Provider.BaseURL = def.Provider.BaseURL
	}
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		cfg.Provider.Model = def.Provider.Model
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}
	cfg.Provider.Models = normalizeModelList(cfg.Provider.Models)
	if len(cfg.Provider.Models) == 0 {
		cfg.Provider.Models = append(cfg.Provider.Models, cfg.Provider.Model)
	}
	if !containsString(cfg.Provider.Models, cfg.Provider.Model) {
		cfg.Provider.Models = append([]string{cfg.Provider.Model}, cfg.Provider.Models...)
		cfg.Provider.Models = normalizeModelList(cfg.Provider.Models)
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 1 {
		cfg.Provider.Temperature = DefaultTemperature
	}
	if cfg.Provider.MaxTokens < MinMaxTokens || cfg.Provider.MaxTokens > MaxMaxTokens {
		cfg.Provider.MaxTokens = DefaultMaxTokens
	}
	if cfg.Provider.MaxRetries < 0 {
		cfg.Provider.MaxRetries = 0
	}

	if strings.TrimSpace(cfg.Chat.DefaultTemplate) == "" {
		cfg.Chat.DefaultTemplate = DefaultTemplate
	}
	if cfg.Chat.HistoryTokenLimit <= 0 {
		cfg.Chat.HistoryTokenLimit = DefaultHistoryTokenLimit
	}
	if cfg.Chat.TemplatesFile != "" {
		p, err := expandPath(cfg.Chat.TemplatesFile)
		if err != nil {
			return err
		}
		cfg.Chat.TemplatesFile = p
	}

	r := &cfg.Retrieval
	if r.ChunkSize <= 0 {
		r.ChunkSize = DefaultChunkSize
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		r.ChunkOverlap = 0
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.MinScore < -1 || r.MinScore > 1 {
		r.MinScore = 0
	}
	if r.ContextTokenLimit <= 0 {
		r.ContextTokenLimit = DefaultContextTokenLimit
	}
	r.Embedder = strings.ToLower(strings.TrimSpace(r.Embedder))
	if r.Embedder != "remote" && r.Embedder != "hash" {
		r.Embedder = "remote"
	}
	if r.HashDim <= 0 {
		r.HashDim = DefaultHashDim
	}
	if r.BatchSize <= 0 {
		r.BatchSize = DefaultEmbedBatchSize
	}

	cfg.Repo.Extensions = normalizeExtensions(cfg.Repo.Extensions)
	if len(cfg.Repo.Extensions) == 0 {
		cfg.Repo.Extensions = def.Repo.Extensions
	}
	if cfg.Repo.MaxFileBytes <= 0 {
		cfg.Repo.MaxFileBytes = DefaultRepoMaxFileBytes
	}
	if cfg.Repo.MaxFiles <= 0 {
		cfg.Repo.MaxFiles = DefaultRepoMaxFiles
	}
	if cfg.Repo.Workers <= 0 {
		cfg.Repo.Workers = DefaultRepoWorkers
	}

	if strings.TrimSpace(cfg.DevOps.BaseURL) == "" {
		cfg.DevOps.BaseURL = DefaultDevOpsBaseURL
	}
	cfg.DevOps.BaseURL = strings.TrimRight(cfg.DevOps.BaseURL, "/")
	if strings.TrimSpace(cfg.DevOps.APIVersion) == "" {
		cfg.DevOps.APIVersion = DefaultDevOpsAPIVersion
	}
	if strings.TrimSpace(cfg.DevOps.WorkItemType) == "" {
		cfg.DevOps.WorkItemType = DefaultWorkItemType
	}
	if strings.TrimSpace(cfg.DevOps.AreaPath) == "" {
		cfg.DevOps.AreaPath = cfg.DevOps.Project
	}

	if strings.TrimSpace(cfg.Mail.Host) == "" {
		cfg.Mail.Host = DefaultMailHost
	}
	if cfg.Mail.Port <= 0 {
		cfg.Mail.Port = DefaultMailPort
	}
	if strings.TrimSpace(cfg.Mail.SenderFilter) == "" {
		cfg.Mail.SenderFilter = DefaultSenderFilter
	}
	if strings.TrimSpace(cfg.Mail.TicketBaseURL) == "" {
		cfg.Mail.TicketBaseURL = DefaultTicketBaseURL
	}

	if cfg.Auth.TokenTTLMinutes <= 0 {
		cfg.Auth.TokenTTLMinutes = DefaultTokenTTLMinutes
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = DefaultServerAddr
	}

	storageDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return err
	}
	cfg.Storage.BaseDir = storageDir
	if cfg.Storage.LogMaxMB <= 0 {
		cfg.Storage.LogMaxMB = def.Storage.LogMaxMB
	}
	if cfg.Storage.CacheTTLHours <= 0 {
		cfg.Storage.CacheTTLHours = def.Storage.CacheTTLHours
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("AYUDAPO_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("AYUDAPO_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := firstEnv("AYUDAPO_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("AYUDAPO_EMBEDDING_API_KEY")); v != "" {
		cfg.Provider.EmbeddingAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("AYUDAPO_MAX_TOKENS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < MinMaxTokens || n > MaxMaxTokens {
			return Config{}, fmt.Errorf("invalid AYUDAPO_MAX_TOKENS: %q", v)
		}
		cfg.Provider.MaxTokens = n
	}
	if v := strings.TrimSpace(os.Getenv("AYUDAPO_TEMPERATURE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return Config{}, fmt.Errorf("invalid AYUDAPO_TEMPERATURE: %q", v)
		}
		cfg.Provider.Temperature = f
	}
	if v := strings.TrimSpace(os.Getenv("AYUDAPO_EMBEDDER")); v != "" {
		cfg.Retrieval.Embedder = v
	}
	if v := strings.TrimSpace(os.Getenv("AYUDAPO_CACHE_PATH")); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("DEVOPS_ORG")); v != "" {
		cfg.DevOps.Organization = v
	}
	if v := strings.TrimSpace(os.Getenv("DEVOPS_PROJECT")); v != "" {
		cfg.DevOps.Project = v
		if cfg.DevOps.AreaPath == "" {
			cfg.DevOps.AreaPath = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEVOPS_PAT")); v != "" {
		cfg.DevOps.PAT = v
	}
	if v := strings.TrimSpace(os.Getenv("EMAIL_USER")); v != "" {
		cfg.Mail.User = v
	}
	if v := os.Getenv("EMAIL_PASS"); v != "" {
		cfg.Mail.Password = v
	}
	if v := os.Getenv("AYUDAPO_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	return cfg, normalize(&cfg)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := map[string]struct{}{}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

func normalizeModelList(models []string) []string {
	out := make([]string, 0, len(models))
	seen := map[string]struct{}{}
	for _, m := range models {
		trimmed := strings.TrimSpace(m)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func containsString(items []string, needle string) bool {
	for _, item := range items {
		if item == needle {
			return true
		}
	}
	return false
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

// stripJSONComments removes // and /* */ comments outside of string literals.
func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case c == '"':
				state = stateString
				out.WriteByte(c)
			case c == '/' && next == '/':
				state = stateLineComment
				i++
			case c == '/' && next == '*':
				state = stateBlockComment
				i++
			default:
				out.WriteByte(c)
			}
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
