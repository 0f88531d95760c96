package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	AppName   = "modup"
	EnvPrefix = "MODUP"

	DefaultConcurrency     = 16
	MaxConcurrency         = 64
	DefaultCacheTTL        = 6 * time.Hour
	DefaultRegistryURL     = "https://api.modrinth.com/v2"
	DefaultRegistryTimeout = 8 * time.Second
	DefaultLogLevel        = "info"
	DefaultCacheBackend    = "json"
)

// 测试可替换；生产环境就是 os.UserConfigDir / os.UserCacheDir / os.UserHomeDir。
var (
	userConfigDir = os.UserConfigDir
	userCacheDir  = os.UserCacheDir
	userHomeDir   = os.UserHomeDir
)

// CLIArgs 是 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --concurrency 必须能覆盖 MODUP_CONCURRENCY。
type CLIArgs struct {
	ConfigFile string
	ModsDir    string

	GameVersion    string
	GameVersionSet bool

	Concurrency    int
	ConcurrencySet bool

	LogLevel    string
	LogLevelSet bool

	// NoCache 只存在于 CLI：本次运行完全不读写缓存快照。
	NoCache bool
}

// fileConfig 对应配置文件与 MODUP_* 环境变量（键名相同，'.' 换成 '_'）。
type fileConfig struct {
	ModsDir     string `mapstructure:"mods_dir"`
	GameVersion string `mapstructure:"game_version"`
	Concurrency int    `mapstructure:"concurrency"`
	BackupDir   string `mapstructure:"backup_dir"`
	UpdateLog   string `mapstructure:"update_log"`

	Cache struct {
		Dir      string        `mapstructure:"dir"`
		Backend  string        `mapstructure:"backend"`
		TTL      time.Duration `mapstructure:"ttl"`
		ReadOnly bool          `mapstructure:"read_only"`
	} `mapstructure:"cache"`

	Registry struct {
		BaseURL   string        `mapstructure:"base_url"`
		UserAgent string        `mapstructure:"user_agent"`
		Timeout   time.Duration `mapstructure:"timeout"`
	} `mapstructure:"registry"`

	Proxy struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"proxy"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
}

type CacheConfig struct {
	Dir      string
	Backend  string // json | sqlite
	TTL      time.Duration
	ReadOnly bool
	Disabled bool
}

type RegistryConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	ModsDir     string
	GameVersion string
	Concurrency int

	Cache    CacheConfig
	Registry RegistryConfig
	ProxyURL string
	Log      LogConfig

	BackupDir string
	UpdateLog string

	// ConfigFile 是实际读取的配置文件；没有读取任何文件时为空。
	ConfigFile string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ConfigDir 返回 modup 的用户配置目录（config 文件与更新日志所在处）。
func ConfigDir() (string, error) {
	d, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, AppName), nil
}

// DefaultModsDir 返回当前平台官方启动器的 mods 目录。
func DefaultModsDir() string {
	home, err := userHomeDir()
	if err != nil {
		return filepath.Join(".minecraft", "mods")
	}
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, ".minecraft", "mods")
		}
		return filepath.Join(home, "AppData", "Roaming", ".minecraft", "mods")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "minecraft", "mods")
	default:
		return filepath.Join(home, ".minecraft", "mods")
	}
}

// LoadEffective 读取配置文件与环境变量，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在（json/yaml/toml 由扩展名决定）
// 2) 否则尝试 <ConfigDir>/config.{json,yaml,yml,toml}（可选）
//
// 覆盖优先级（固定）：CLI > 环境变量 MODUP_* > 配置文件 > 默认值
func LoadEffective(cli CLIArgs) (EffectiveConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := strings.TrimSpace(cli.ConfigFile)
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: err}
		}
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	} else if dir, err := ConfigDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(dir, "config"), Err: err}
			}
		}
		cfgPath = v.ConfigFileUsed()
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return merge(cli, fc, cfgPath)
}

func setDefaults(v *viper.Viper) {
	cacheDir := filepath.Join(os.TempDir(), AppName)
	if d, err := userCacheDir(); err == nil {
		cacheDir = filepath.Join(d, AppName)
	}
	updateLog := ""
	if d, err := ConfigDir(); err == nil {
		updateLog = filepath.Join(d, "update.log")
	}

	v.SetDefault("mods_dir", DefaultModsDir())
	v.SetDefault("game_version", "")
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("backup_dir", "")
	v.SetDefault("update_log", updateLog)
	v.SetDefault("cache.dir", cacheDir)
	v.SetDefault("cache.backend", DefaultCacheBackend)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.read_only", false)
	v.SetDefault("registry.base_url", DefaultRegistryURL)
	v.SetDefault("registry.user_agent", "")
	v.SetDefault("registry.timeout", DefaultRegistryTimeout)
	v.SetDefault("proxy.url", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
}

func merge(cli CLIArgs, fc fileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	modsDir := fc.ModsDir
	if strings.TrimSpace(cli.ModsDir) != "" {
		modsDir = cli.ModsDir
	}
	modsDir = absClean(modsDir)
	if modsDir == "" {
		return EffectiveConfig{}, invalid("mods_dir 不能为空")
	}

	gameVersion := strings.TrimSpace(fc.GameVersion)
	if cli.GameVersionSet {
		gameVersion = strings.TrimSpace(cli.GameVersion)
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	// 范围 [1, 64]；超出截断。
	concurrency = min(max(concurrency, 1), MaxConcurrency)

	backend := strings.ToLower(strings.TrimSpace(fc.Cache.Backend))
	switch backend {
	case "":
		backend = DefaultCacheBackend
	case "json", "sqlite":
	default:
		return EffectiveConfig{}, invalid("cache.backend 只能是 json 或 sqlite，实际是 %q", fc.Cache.Backend)
	}
	ttl := fc.Cache.TTL
	if ttl < 0 {
		return EffectiveConfig{}, invalid("cache.ttl 不能为负数")
	}
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	baseURL := strings.TrimRight(strings.TrimSpace(fc.Registry.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}
	if u, err := url.Parse(baseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return EffectiveConfig{}, invalid("registry.base_url 必须是 http/https URL：%q", baseURL)
	}
	timeout := fc.Registry.Timeout
	if timeout <= 0 {
		timeout = DefaultRegistryTimeout
	}

	proxyURL := strings.TrimSpace(fc.Proxy.URL)
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, invalid("proxy.url 无效：%q", proxyURL)
		}
	}

	level := strings.ToLower(strings.TrimSpace(fc.Log.Level))
	if cli.LogLevelSet {
		level = strings.ToLower(strings.TrimSpace(cli.LogLevel))
	}
	switch level {
	case "":
		level = DefaultLogLevel
	case "debug", "info", "warn", "error":
	default:
		return EffectiveConfig{}, invalid("log.level 只能是 debug/info/warn/error，实际是 %q", level)
	}

	backupDir := absClean(fc.BackupDir)
	if backupDir == "" {
		// 与 mods 同级：<.minecraft>/mods_backup
		backupDir = filepath.Join(filepath.Dir(modsDir), "mods_backup")
	}

	return EffectiveConfig{
		ModsDir:     modsDir,
		GameVersion: gameVersion,
		Concurrency: concurrency,
		Cache: CacheConfig{
			Dir:      absClean(fc.Cache.Dir),
			Backend:  backend,
			TTL:      ttl,
			ReadOnly: fc.Cache.ReadOnly,
			Disabled: cli.NoCache,
		},
		Registry: RegistryConfig{
			BaseURL:   baseURL,
			UserAgent: strings.TrimSpace(fc.Registry.UserAgent),
			Timeout:   timeout,
		},
		ProxyURL:   proxyURL,
		Log:        LogConfig{Level: level, File: absClean(fc.Log.File)},
		BackupDir:  backupDir,
		UpdateLog:  absClean(fc.UpdateLog),
		ConfigFile: cfgPath,
	}, nil
}

// absClean 把 p 变为 clean + absolute；"~/" 开头时展开为用户目录。空串原样返回。
func absClean(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := userHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
