package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个客户端核心的配置项。
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Chat    ChatConfig
	Storage StorageConfig
	Audio   AudioConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	audio, err := loadAudioConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Backend: backend,
		Chat:    chat,
		Storage: loadStorageConfig(),
		Audio:   audio,
		Log:     logCfg,
	}, nil
}

// ServerConfig 描述本地桥接 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// FrameTransport 选择实时帧的上传方式。
type FrameTransport string

const (
	FrameTransportMultipart FrameTransport = "multipart"
	FrameTransportBase64    FrameTransport = "base64"
)

// BackendConfig 描述分析后端的地址、凭证与按类型区分的超时。
type BackendConfig struct {
	BaseURL         string
	Token           string
	TextTimeout     time.Duration
	MediaTimeout    time.Duration
	VideoTimeout    time.Duration
	RealtimeTimeout time.Duration
	FrameTransport  FrameTransport
}

func loadBackendConfig() (BackendConfig, error) {
	textTimeout, err := parseSecondsEnv("BACKEND_TEXT_TIMEOUT", 30*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	mediaTimeout, err := parseSecondsEnv("BACKEND_MEDIA_TIMEOUT", 2*time.Minute)
	if err != nil {
		return BackendConfig{}, err
	}

	// 视频上传体积大，默认放宽到 10 分钟
	videoTimeout, err := parseSecondsEnv("BACKEND_VIDEO_TIMEOUT", 10*time.Minute)
	if err != nil {
		return BackendConfig{}, err
	}

	realtimeTimeout, err := parseSecondsEnv("BACKEND_REALTIME_TIMEOUT", 15*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	transport := FrameTransport(strings.ToLower(getEnvOrDefault("REALTIME_FRAME_TRANSPORT", string(FrameTransportMultipart))))
	switch transport {
	case FrameTransportMultipart, FrameTransportBase64:
	default:
		return BackendConfig{}, fmt.Errorf("invalid REALTIME_FRAME_TRANSPORT value %q", transport)
	}

	baseURL := strings.TrimRight(getEnvOrDefault("BACKEND_BASE_URL", "http://localhost:8000"), "/")

	return BackendConfig{
		BaseURL:         baseURL,
		Token:           strings.TrimSpace(os.Getenv("BACKEND_TOKEN")),
		TextTimeout:     textTimeout,
		MediaTimeout:    mediaTimeout,
		VideoTimeout:    videoTimeout,
		RealtimeTimeout: realtimeTimeout,
		FrameTransport:  transport,
	}, nil
}

// ChatConfig 描述时间线编排相关配置。
type ChatConfig struct {
	FollowUpDelay time.Duration
}

func loadChatConfig() (ChatConfig, error) {
	delayMs, err := parseOptionalIntEnv("CHAT_FOLLOWUP_DELAY_MS")
	if err != nil {
		return ChatConfig{}, err
	}

	delay := 500 * time.Millisecond
	if delayMs != nil {
		if *delayMs < 0 {
			return ChatConfig{}, fmt.Errorf("invalid CHAT_FOLLOWUP_DELAY_MS value %d", *delayMs)
		}
		delay = time.Duration(*delayMs) * time.Millisecond
	}

	return ChatConfig{FollowUpDelay: delay}, nil
}

// StorageConfig 描述本地持久化目录与可选的历史归档数据库。
type StorageConfig struct {
	DataDir   string
	HistoryDB string
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir:   getEnvOrDefault("DATA_DIR", "./data"),
		HistoryDB: strings.TrimSpace(os.Getenv("HISTORY_DB")),
	}
}

// AudioConfig 描述录音参数，默认为低码率单声道以兼容后端转写。
type AudioConfig struct {
	FFmpegPath  string
	InputFormat string
	InputDevice string
	SampleRate  int
	Bitrate     string
}

func loadAudioConfig() (AudioConfig, error) {
	sampleRate := 16000
	if override, err := parseOptionalIntEnv("AUDIO_SAMPLE_RATE"); err != nil {
		return AudioConfig{}, err
	} else if override != nil {
		if *override <= 0 {
			return AudioConfig{}, fmt.Errorf("invalid AUDIO_SAMPLE_RATE value %d", *override)
		}
		sampleRate = *override
	}

	return AudioConfig{
		FFmpegPath:  getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		InputFormat: getEnvOrDefault("AUDIO_INPUT_FORMAT", "pulse"),
		InputDevice: getEnvOrDefault("AUDIO_INPUT_DEVICE", "default"),
		SampleRate:  sampleRate,
		Bitrate:     getEnvOrDefault("AUDIO_BITRATE", "32k"),
	}, nil
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string
	Pretty bool
}

func loadLogConfig() (LogConfig, error) {
	pretty, err := parseBoolEnv("LOG_PRETTY", true)
	if err != nil {
		return LogConfig{}, err
	}

	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Pretty: pretty,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseSecondsEnv 读取以秒为单位的超时，缺省时返回 defaultValue。
func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	seconds, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if seconds == nil {
		return defaultValue, nil
	}
	if *seconds <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *seconds)
	}
	return time.Duration(*seconds) * time.Second, nil
}
