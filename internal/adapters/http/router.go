package http

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/saucecode/kittencatroom/internal/adapters"
	"github.com/saucecode/kittencatroom/internal/app"
	"github.com/saucecode/kittencatroom/internal/config"
	"github.com/saucecode/kittencatroom/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags each browser with a cookie token used only for
// log correlation; it carries no identity the relay trusts.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, reg *app.Registry, mon *app.Monitor) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CatroomSessions", store))
	r.Use(ClientTokenMiddleware())

	r.LoadHTMLGlob(filepath.Join(cfg.TemplatePath, "*.html"))
	r.Static("/res", cfg.StaticPath)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Str("templates", cfg.TemplatePath).Msg("router setup")

	r.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", nil)
	})

	// POST /newroom/ — the fish is opaque ciphertext; only its length is
	// policed, matching the fixed-length hash encoding clients produce.
	r.POST("/newroom/", func(c *gin.Context) {
		var form struct {
			RoomPassword string `form:"room_password" binding:"required,min=64"`
		}
		if err := c.ShouldBind(&form); err != nil {
			c.String(http.StatusBadRequest, "Invalid form parameters.")
			return
		}
		id, err := reg.CreateRoom(form.RoomPassword)
		if err != nil {
			c.String(http.StatusBadRequest, "Invalid form parameters.")
			return
		}
		c.HTML(http.StatusOK, "created.html", gin.H{"RoomID": string(id)})
	})

	// GET /room?id= — renders the room page with the fish embedded so the
	// connecting browser can attempt decryption locally.
	r.GET("/room", func(c *gin.Context) {
		id := c.Query("id")
		room, ok := reg.Get(domain.RoomID(id))
		if id == "" || !ok {
			c.String(http.StatusNotFound, "Invalid room ID %q", id)
			return
		}
		c.HTML(http.StatusOK, "chatroom.html", gin.H{
			"RoomID": id,
			"Fish":   room.Room().Fish,
		})
	})

	ctl := &adapters.ChatController{
		Registry:       reg,
		Monitor:        mon,
		ReadLimit:      cfg.ReadLimit,
		ConnectTimeout: cfg.ConnectTimeout,
	}
	r.GET("/chat", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("chat endpoint hit")
		ctl.HandleChat(ctx, c)
	})

	return r
}
