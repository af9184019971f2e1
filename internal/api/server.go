package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/nagham05/chatterly/internal/blob"
	"github.com/nagham05/chatterly/internal/block"
	"github.com/nagham05/chatterly/internal/chat"
	"github.com/nagham05/chatterly/internal/clock"
	"github.com/nagham05/chatterly/internal/config"
	"github.com/nagham05/chatterly/internal/group"
	"github.com/nagham05/chatterly/internal/hub"
	"github.com/nagham05/chatterly/internal/session"
	"github.com/nagham05/chatterly/internal/store"
)

type Server struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	st       *store.Store
	sessions *session.Manager
	chats    *chat.Service
	groups   *group.Manager
	blocks   *block.Service
	blobs    *blob.Store
	hub      *hub.Hub
	presence *hub.Presence
	clk      clock.Clock
	syncs    *syncRegistry
}

func NewServer(cfg *config.Config, log *zap.SugaredLogger, st *store.Store, sessions *session.Manager,
	chats *chat.Service, groups *group.Manager, blocks *block.Service, blobs *blob.Store,
	h *hub.Hub, presence *hub.Presence, clk clock.Clock) (*Server, *fiber.App) {

	s := &Server{
		cfg:      cfg,
		log:      log,
		st:       st,
		sessions: sessions,
		chats:    chats,
		groups:   groups,
		blocks:   blocks,
		blobs:    blobs,
		hub:      h,
		presence: presence,
		clk:      clk,
	}
	s.syncs = newSyncRegistry(s)

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // attachments come through here
	})
	app.Use(fiberlogger.New())
	app.Use(newIPRateLimiter(cfg.Rate.PerMinute, log).Handler())

	api := app.Group("/v1")
	api.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api.Post("/auth/signup", s.signUp)
	api.Post("/auth/signin", s.signIn)
	api.Post("/auth/reset-request", s.resetRequest)
	api.Post("/auth/reset", s.resetPassword)

	auth := api.Group("", s.requireAuth())
	auth.Post("/auth/signout", s.signOut)
	auth.Get("/me", s.me)
	auth.Patch("/me", s.updateProfile)
	auth.Get("/users", s.searchUsers)

	auth.Get("/chats/:peer_id/messages", s.history)
	auth.Post("/chats/:peer_id/messages", s.sendDirect)
	auth.Post("/chats/:peer_id/read", s.markRead)
	auth.Patch("/messages/:id", s.editDirect)
	auth.Delete("/messages/:id", s.deleteDirect)
	auth.Post("/messages/:id/reactions", s.reactDirect)

	auth.Post("/blocks/:peer_id", s.blockPeer)
	auth.Delete("/blocks/:peer_id", s.unblockPeer)
	auth.Get("/blocks/:peer_id", s.blockStatus)

	auth.Post("/groups", s.createGroup)
	auth.Get("/groups/:id", s.getGroup)
	auth.Delete("/groups/:id", s.deleteGroup)
	auth.Post("/groups/:id/members", s.addMembers)
	auth.Delete("/groups/:id/members", s.removeMembers)
	auth.Post("/groups/:id/admins/:member_id", s.makeAdmin)
	auth.Delete("/groups/:id/admins/:member_id", s.removeAdmin)
	auth.Post("/groups/:id/leave", s.leaveGroup)
	auth.Post("/groups/:id/messages", s.sendGroup)
	auth.Patch("/group-messages/:id", s.editGroup)
	auth.Delete("/group-messages/:id", s.deleteGroupMessage)
	auth.Post("/group-messages/:id/reactions", s.reactGroup)

	auth.Post("/media", s.uploadMedia)

	auth.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	auth.Get("/ws", websocket.New(s.handleWS))

	return s, app
}
