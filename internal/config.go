package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port           int           `yaml:"port"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		IdleTimeout    time.Duration `yaml:"idle_timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"` // "*" 允許所有來源
	} `yaml:"server"`

	WebSocket WebSocketConfig `yaml:"websocket"`

	Match struct {
		QueueSize         int  `yaml:"queue_size"`         // 入站事件佇列長度
		RequireMembership bool `yaml:"require_membership"` // start_game / move 是否限房間成員
	} `yaml:"match"`

	NATS struct {
		URL           string `yaml:"url"` // 空字串表示停用
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
}

// WebSocketConfig 連線參數
//
// PingPeriod 必須小於 PongWait，否則健康的連線也會逾時。
type WebSocketConfig struct {
	PingPeriod     time.Duration `yaml:"ping_period"`
	PongWait       time.Duration `yaml:"pong_wait"`
	WriteWait      time.Duration `yaml:"write_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3000
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.WebSocket = WebSocketConfig{
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}

	cfg.Match.QueueSize = 1024
	cfg.Match.RequireMembership = false

	cfg.NATS.SubjectPrefix = "scacchi.matches"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"

	return cfg
}

// LoadConfig 載入配置檔案
//
// 檔案不存在時使用預設值；檔案中未出現的欄位保留預設值。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// #nosec G304 - path 來自命令列參數
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv 以環境變數覆蓋配置
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if port := getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		c.Server.Port = p
	}
	if url := getenv("NATS_URL"); url != "" {
		c.NATS.URL = url
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	ws := c.WebSocket
	if ws.PongWait <= 0 || ws.PingPeriod <= 0 || ws.WriteWait <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	if ws.PingPeriod >= ws.PongWait {
		return fmt.Errorf("websocket.ping_period (%s) must be shorter than pong_wait (%s)", ws.PingPeriod, ws.PongWait)
	}
	if ws.MaxMessageSize <= 0 || ws.SendBuffer <= 0 {
		return errors.New("websocket.max_message_size and send_buffer must be positive")
	}
	if c.Match.QueueSize <= 0 {
		return errors.New("match.queue_size must be positive")
	}
	return nil
}

// Addr HTTP 監聽位址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
