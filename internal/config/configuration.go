package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT"`

	// Storage layout
	DataDir  string `mapstructure:"DATA_DIR" validate:"required"`
	MediaDir string `mapstructure:"MEDIA_DIR" validate:"required"`

	// External tool binaries
	FFmpegPath  string `mapstructure:"FFMPEG_PATH"`
	FFprobePath string `mapstructure:"FFPROBE_PATH"`
	UntruncPath string `mapstructure:"UNTRUNC_PATH"`
	YtdlpPath   string `mapstructure:"YTDLP_PATH"`

	// Known-good reference video used by untrunc when repairing a
	// truncated download.
	ReferenceVideoPath string `mapstructure:"REFERENCE_VIDEO_PATH"`

	// Number of preview thumbnails generated per video.
	ThumbnailCount int `mapstructure:"THUMBNAIL_COUNT" validate:"gte=1"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag != "" {
			viper.BindEnv(tag)
		}
	}
	slog.Info("Environment variables bound", "config", c)
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("MEDIA_DIR", "media")
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("FFPROBE_PATH", "ffprobe")
	viper.SetDefault("UNTRUNC_PATH", "untrunc")
	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("REFERENCE_VIDEO_PATH", "media/working-video/video.mp4")
	viper.SetDefault("THUMBNAIL_COUNT", 8)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration", "config", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
