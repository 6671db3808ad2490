package web

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"thirdcoast.systems/vodstash/cmd/web/handlers/api/settings_api"
	"thirdcoast.systems/vodstash/cmd/web/handlers/api/video_api"
	"thirdcoast.systems/vodstash/internal/job"
	"thirdcoast.systems/vodstash/internal/store"
	"thirdcoast.systems/vodstash/pkg/ytdlp"
)

type Webserver struct {
	*echo.Echo
	orchestrator *job.Orchestrator
	catalog      *store.Catalog
	preferences  *store.Preferences
	resolver     *ytdlp.Client
	uploadDir    string
}

func NewWebserver(orch *job.Orchestrator, catalog *store.Catalog, prefs *store.Preferences, resolver *ytdlp.Client, uploadDir string) (*Webserver, error) {
	s := &Webserver{
		Echo:         echo.New(),
		orchestrator: orch,
		catalog:      catalog,
		preferences:  prefs,
		resolver:     resolver,
		uploadDir:    uploadDir,
	}
	s.registerRoutes()
	s.setupMiddleware()
	return s, nil
}

func (s *Webserver) setupMiddleware() {
	s.HideBanner = true
	s.HidePort = true
	// Uploads carry whole video files.
	s.Use(middleware.BodyLimit("4G"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Media payloads are already compressed.
			return strings.HasPrefix(c.Path(), "/video/") ||
				strings.HasPrefix(c.Path(), "/thumbnail/")
		},
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))
}

func (s *Webserver) registerRoutes() {
	api := s.Group("/api")

	api.POST("/video/stream", video_api.HandleSubmitStream(s.orchestrator, s.resolver))
	api.POST("/video/download", video_api.HandleSubmitDownload(s.orchestrator, s.resolver))
	api.POST("/video/trim", video_api.HandleSubmitTrim(s.orchestrator, s.resolver, s.catalog))
	api.POST("/video/upload", video_api.HandleSubmitUpload(s.orchestrator, s.uploadDir))
	api.DELETE("/video/:id", video_api.HandleDelete(s.orchestrator))

	api.POST("/cancel/download", video_api.HandleCancelDownload(s.orchestrator))
	api.POST("/cancel/compression", video_api.HandleCancelCompression(s.orchestrator))

	api.GET("/downloads", video_api.HandleDownloadsIndex(s.orchestrator))
	api.POST("/downloads/:id/resume", video_api.HandleResume(s.orchestrator))

	api.GET("/settings/player", settings_api.HandlePlayerGet(s.preferences))
	api.PUT("/settings/player", settings_api.HandlePlayerPut(s.preferences))
	api.PUT("/settings/compression", settings_api.HandleCompressionPut(s.preferences))

	s.GET("/video/:id", video_api.HandleVideo(s.catalog))
	s.GET("/thumbnail/:id/:index", video_api.HandleThumbnail(s.catalog))
}
