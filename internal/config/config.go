package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	Game  GameConfig  `mapstructure:"game"`
	Agent AgentConfig `mapstructure:"agent"`
	Debug DebugConfig `mapstructure:"debug"`
}

type GameConfig struct {
	DefaultMode             string `mapstructure:"default_mode"`
	DefaultSeatCount        int    `mapstructure:"default_seat_count"`
	NightRoleTimeoutSeconds int    `mapstructure:"night_role_timeout_seconds"`
	SpeakerBudgetSeconds    int    `mapstructure:"speaker_budget_seconds"`
	AnnouncementTTLSeconds  int    `mapstructure:"announcement_ttl_seconds"`
	MaxSpeechLength         int    `mapstructure:"max_speech_length"`
}

// AgentConfig 配置决策系统使用的大模型，Provider 为空时只使用规则决策
type AgentConfig struct {
	// openai | claude | gemini | ollama | openai-compatible
	Provider       string  `mapstructure:"provider"`
	Model          string  `mapstructure:"model"`
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	OllamaURL      string  `mapstructure:"ollama_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	Temperature    float64 `mapstructure:"temperature"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

type DebugConfig struct {
	// 键为 "<房间号>_<座位号>"，值为角色名
	PinnedRoles map[string]string `mapstructure:"pinned_roles"`
}

var cfg *AppConfig

func GetConfig() *AppConfig {
	if cfg == nil {
		cfg = InitConfig()
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	v.SetDefault("game.default_mode", "classic")
	v.SetDefault("game.default_seat_count", 12)
	// 0 表示使用游戏模式自带的时长
	v.SetDefault("game.night_role_timeout_seconds", 0)
	v.SetDefault("game.speaker_budget_seconds", 0)
	v.SetDefault("game.announcement_ttl_seconds", 5)
	v.SetDefault("game.max_speech_length", 300)

	v.SetDefault("agent.provider", "")
	v.SetDefault("agent.model", "")
	v.SetDefault("agent.base_url", "")
	v.SetDefault("agent.api_key", "")
	v.SetDefault("agent.ollama_url", "http://localhost:11434")
	v.SetDefault("agent.timeout_seconds", 8)
	v.SetDefault("agent.temperature", 0.7)
	v.SetDefault("agent.rate_per_second", 2)
	v.SetDefault("agent.burst", 4)
}

// InitConfig 读取工作目录下的 app_config.json，文件不存在时使用默认值
// 环境变量以 WEREWOLF_ 为前缀覆盖配置，如 WEREWOLF_AGENT_API_KEY
func InitConfig() *AppConfig {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("app_config")
	v.SetConfigType("json")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WEREWOLF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("加载配置失败: %w", err))
		}
	}

	var config AppConfig

	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("解析配置失败: %w", err))
	}

	return &config
}

// PinnedRolesByRoom 把 "<房间号>_<座位号>" 形式的配置整理成 房间号 -> 座位号 -> 角色名
func (dc DebugConfig) PinnedRolesByRoom() (map[string]map[int]string, error) {
	pins := make(map[string]map[int]string)

	for key, role := range dc.PinnedRoles {
		idx := strings.LastIndex(key, "_")
		if idx <= 0 || idx == len(key)-1 {
			return nil, fmt.Errorf("固定角色配置键格式错误: %q", key)
		}

		seat, err := strconv.Atoi(key[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("固定角色配置座位号错误: %q: %w", key, err)
		}

		roomID := key[:idx]
		if pins[roomID] == nil {
			pins[roomID] = make(map[int]string)
		}
		pins[roomID][seat] = role
	}

	return pins, nil
}
