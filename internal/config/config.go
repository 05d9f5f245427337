package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type Graph struct {
	BaseURL      string `yaml:"BaseURL"` // 默认 https://graph.microsoft.com/v1.0
	TenantID     string `yaml:"TenantID"`
	ClientID     string `yaml:"ClientID"`
	ClientSecret string `yaml:"ClientSecret"`
	Mailbox      string `yaml:"Mailbox"` // 机器人邮箱，会议参与者中会被忽略
}

type Google struct {
	CredentialsFile string `yaml:"CredentialsFile"` // 服务账号私钥文件
	Bucket          string `yaml:"Bucket"`          // 待转写录音的存储桶，默认 untranscribed
}

type Speech struct {
	Encoding        string `yaml:"Encoding"`        // 默认 LINEAR16
	SampleRateHertz int32  `yaml:"SampleRateHertz"` // 默认 8000
	LanguageCode    string `yaml:"LanguageCode"`    // 默认 en-US
	Model           string `yaml:"Model"`           // 默认 phone_call
}

type Audio struct {
	FFmpegPath    string  `yaml:"FFmpegPath"`    // 默认 ffmpeg
	ClipsDir      string  `yaml:"ClipsDir"`      // 说话人音频片段输出目录
	SampleSeconds float64 `yaml:"SampleSeconds"` // 每个说话人收集的音频时长（秒），默认 20
}

type Enrollment struct {
	ServerAddress string `yaml:"ServerAddress"` // 声纹注册页面所在地址
	WindowHours   int    `yaml:"WindowHours"`   // 会议开始前多少小时检查注册情况，默认 24
}

type Scheduler struct {
	PollCron string `yaml:"PollCron"` // cron 表达式，如 "*/5 * * * *"
}

type LLM struct {
	Enable    bool   `yaml:"Enable"`
	BaseURL   string `yaml:"BaseURL"` // 兼容 OpenAI API 的端点
	APIKey    string `yaml:"APIKey"`
	Model     string `yaml:"Model"`
	MaxTokens int    `yaml:"MaxTokens"` // 模型上下文窗口大小
}

type Config struct {
	DataDir        string     `yaml:"DataDir"`        // 默认 data
	TranscriptsDir string     `yaml:"TranscriptsDir"` // 默认 transcriptions
	Sock5Proxy     Sock5Proxy `yaml:"Sock5Proxy"`
	Graph          Graph      `yaml:"Graph"`
	Google         Google     `yaml:"Google"`
	Speech         Speech     `yaml:"Speech"`
	Audio          Audio      `yaml:"Audio"`
	Enrollment     Enrollment `yaml:"Enrollment"`
	Scheduler      Scheduler  `yaml:"Scheduler"`
	LLM            LLM        `yaml:"LLM"`
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析 YAML 配置，填充默认值并校验
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.TranscriptsDir == "" {
		c.TranscriptsDir = "transcriptions"
	}
	if c.Graph.BaseURL == "" {
		c.Graph.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if c.Google.Bucket == "" {
		c.Google.Bucket = "untranscribed"
	}
	if c.Speech.Encoding == "" {
		c.Speech.Encoding = "LINEAR16"
	}
	if c.Speech.SampleRateHertz == 0 {
		c.Speech.SampleRateHertz = 8000
	}
	if c.Speech.LanguageCode == "" {
		c.Speech.LanguageCode = "en-US"
	}
	if c.Speech.Model == "" {
		c.Speech.Model = "phone_call"
	}
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = "ffmpeg"
	}
	if c.Audio.ClipsDir == "" {
		c.Audio.ClipsDir = "clips"
	}
	if c.Audio.SampleSeconds == 0 {
		c.Audio.SampleSeconds = 20
	}
	if c.Enrollment.WindowHours == 0 {
		c.Enrollment.WindowHours = 24
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 Graph
	if c.Graph.TenantID == "" {
		return fmt.Errorf("Graph.TenantID 不能为空")
	}
	if c.Graph.ClientID == "" {
		return fmt.Errorf("Graph.ClientID 不能为空")
	}
	if c.Graph.ClientSecret == "" {
		return fmt.Errorf("Graph.ClientSecret 不能为空")
	}
	if c.Graph.Mailbox == "" {
		return fmt.Errorf("Graph.Mailbox 不能为空")
	}

	// 验证 Speech
	if c.Speech.SampleRateHertz < 0 {
		return fmt.Errorf("Speech.SampleRateHertz 必须大于 0")
	}
	if c.Audio.SampleSeconds < 0 {
		return fmt.Errorf("Audio.SampleSeconds 必须 >= 0")
	}

	// 验证 Enrollment
	if c.Enrollment.ServerAddress == "" {
		return fmt.Errorf("Enrollment.ServerAddress 不能为空")
	}
	if c.Enrollment.WindowHours < 0 {
		return fmt.Errorf("Enrollment.WindowHours 必须 >= 0")
	}

	// 验证 Scheduler
	if c.Scheduler.PollCron == "" {
		return fmt.Errorf("Scheduler.PollCron 不能为空")
	}

	// 验证 LLM（仅在启用时）
	if c.LLM.Enable {
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM.APIKey 不能为空")
		}
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("LLM.BaseURL 不能为空")
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("LLM.Model 不能为空")
		}
		if c.LLM.MaxTokens <= 0 {
			return fmt.Errorf("LLM.MaxTokens 必须大于 0")
		}
	}

	return nil
}
