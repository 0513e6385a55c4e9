package httpapi

import (
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	logx "adhand/pkg/logx"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the route table for cfg. Deps.Store and Deps.Signals
// must be set.
func NewRouter(cfg Config, deps Deps, log logx.Logger) *gin.Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := gin.New()
	r.Use(recoverJSON(log), accessLog(log))
	if c, ok := corsConfig(cfg.CORSOrigins); ok {
		r.Use(cors.New(c))
	}

	h := &handlers{deps: deps, log: log}
	r.GET("/health", h.health)

	api := r.Group("/", requireToken(cfg.Token))
	api.GET("/timings", h.listTimings)
	api.GET("/status", h.status)
	api.GET("/history", h.history)

	control := api.Group("/", limitRate(newLimiter(cfg.ControlRate, cfg.ControlBurst)))
	control.POST("/timings", h.setAllEnabled)
	control.PUT("/timings/:date/:event", h.patchEnabled)
	control.POST("/play", h.play)
	control.POST("/halt", h.halt)
	control.POST("/volume/up", h.volumeUp)
	control.POST("/volume/down", h.volumeDown)

	if deps.Metrics != nil {
		path := strings.TrimSpace(cfg.MetricsPath)
		if path == "" {
			path = DefaultMetricsPath
		}
		api.GET(path, gin.WrapH(deps.Metrics))
	}
	if cfg.Pprof {
		pp := api.Group("/debug/pprof")
		pp.GET("/", gin.WrapF(hpprof.Index))
		pp.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
		pp.GET("/profile", gin.WrapF(hpprof.Profile))
		pp.GET("/symbol", gin.WrapF(hpprof.Symbol))
		pp.POST("/symbol", gin.WrapF(hpprof.Symbol))
		pp.GET("/trace", gin.WrapF(hpprof.Trace))
		pp.GET("/:profile", gin.WrapF(hpprof.Index))
	}

	// The static client is public; everything it loads from the API is not.
	if dir := strings.TrimSpace(cfg.StaticDir); dir != "" {
		files := http.FileServer(http.Dir(dir))
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			files.ServeHTTP(c.Writer, c.Request)
		})
	} else {
		r.NoRoute(func(c *gin.Context) { c.JSON(http.StatusNotFound, gin.H{"error": "not found"}) })
	}
	return r
}

func corsConfig(origins []string) (cors.Config, bool) {
	var list []string
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			list = append(list, o)
		}
	}
	if len(list) == 0 {
		return cors.Config{}, false
	}
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS", "HEAD"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range list {
		if o == "*" {
			c.AllowAllOrigins = true
			return c, true
		}
	}
	c.AllowOrigins = list
	return c, true
}
