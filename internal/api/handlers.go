package api

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nagham05/chatterly/internal/block"
	"github.com/nagham05/chatterly/internal/chat"
	"github.com/nagham05/chatterly/internal/group"
	"github.com/nagham05/chatterly/internal/model"
	"github.com/nagham05/chatterly/internal/session"
	"github.com/nagham05/chatterly/internal/store"
)

// respondErr maps service errors onto HTTP responses. Structural store
// failures get their own code so clients can render "setup in progress"
// instead of a generic error banner.
func respondErr(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrIndexNotReady):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"code": "index_not_ready", "error": "the server is still preparing this view, try again shortly",
		})
	case errors.Is(err, store.ErrUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"code": "unavailable", "error": "storage temporarily unavailable"})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"code": "not_found", "error": "not found"})
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrInvalidToken):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"code": "unauthorized", "error": err.Error()})
	case errors.Is(err, session.ErrEmailTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"code": "email_taken", "error": err.Error()})
	case errors.Is(err, chat.ErrBlocked):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"code": "blocked", "error": err.Error()})
	case errors.Is(err, chat.ErrNotSender), errors.Is(err, group.ErrNotSender),
		errors.Is(err, group.ErrNotAdmin), errors.Is(err, group.ErrNotCreator),
		errors.Is(err, group.ErrNotMember):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"code": "forbidden", "error": err.Error()})
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrSystemMsg),
		errors.Is(err, group.ErrEmptyMessage), errors.Is(err, group.ErrSystemImmutable),
		errors.Is(err, group.ErrEmptyName), errors.Is(err, group.ErrNoMembers),
		errors.Is(err, group.ErrCreatorRemove), errors.Is(err, group.ErrCreatorDemote),
		errors.Is(err, group.ErrCreatorLeave), errors.Is(err, group.ErrWouldEmptyGroup),
		errors.Is(err, block.ErrSelfBlock):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "validation", "error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"code": "internal", "error": "internal server error"})
	}
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *Server) signUp(c *fiber.Ctx) error {
	var req authRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "validation", "error": "email, password and name are required"})
	}
	u, token, err := s.sessions.SignUp(c.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": u, "token": token})
}

func (s *Server) signIn(c *fiber.Ctx) error {
	var req authRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	u, token, err := s.sessions.SignIn(c.Context(), req.Email, req.Password)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"user": u, "token": token})
}

func (s *Server) signOut(c *fiber.Ctx) error {
	token, _ := c.Locals(localToken).(string)
	if err := s.sessions.SignOut(c.Context(), token); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) resetRequest(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := s.sessions.SendPasswordReset(c.Context(), req.Email); err != nil {
		return respondErr(c, err)
	}
	// Always 202 so the endpoint does not leak which emails exist.
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) resetPassword(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := s.sessions.ResetPassword(c.Context(), req.Token, req.Password); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) me(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	var req struct {
		Name          *string `json:"name"`
		Bio           *string `json:"bio"`
		ProfilePicURL *string `json:"profile_pic_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	fields := bson.M{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "validation", "error": "name cannot be empty"})
		}
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Bio != nil {
		fields["bio"] = *req.Bio
	}
	if req.ProfilePicURL != nil {
		fields["profile_pic_url"] = *req.ProfilePicURL
	}
	if len(fields) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}
	u := currentUser(c)
	if err := s.st.UpdateUserProfile(c.Context(), u.ID, fields); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

const maxSearchResults = 20

// searchUsers is how a client discovers a peer to start a conversation
// with: email-prefix lookup, excluding the caller.
func (s *Server) searchUsers(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "validation", "error": "query is required"})
	}
	users, err := s.st.SearchUsers(c.Context(), query, maxSearchResults)
	if err != nil {
		return respondErr(c, err)
	}
	me := currentUser(c)
	out := users[:0]
	for _, u := range users {
		if u.ID != me.ID {
			out = append(out, u)
		}
	}
	return c.JSON(fiber.Map{"users": out})
}

type sendMessageRequest struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Type     model.MessageType `json:"type"`
	FileName string            `json:"file_name"`
}

func (s *Server) sendDirect(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	u := currentUser(c)
	msg := &model.Message{
		ID:         req.ID,
		ReceiverID: c.Params("peer_id"),
		Content:    req.Content,
		Type:       req.Type,
		FileName:   req.FileName,
	}
	saved, err := s.chats.Send(c.Context(), u, msg)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) history(c *fiber.Ctx) error {
	u := currentUser(c)
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	var before model.Timestamp
	if v := c.Query("before"); v != "" {
		var err error
		if before, err = model.ParseTimestamp(v); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "validation", "error": "before must be RFC 3339"})
		}
	}
	msgs, err := s.chats.History(c.Context(), u, c.Params("peer_id"), limit, before)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (s *Server) markRead(c *fiber.Ctx) error {
	u := currentUser(c)
	n, err := s.chats.MarkRead(c.Context(), u, c.Params("peer_id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"marked": n})
}

func (s *Server) editDirect(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := s.chats.Edit(c.Context(), currentUser(c), c.Params("id"), req.Content); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteDirect(c *fiber.Ctx) error {
	if err := s.chats.Delete(c.Context(), currentUser(c), c.Params("id")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) reactDirect(c *fiber.Ctx) error {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := s.chats.ToggleReaction(c.Context(), currentUser(c), c.Params("id"), req.Emoji); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) blockPeer(c *fiber.Ctx) error {
	if err := s.blocks.Block(c.Context(), currentUser(c).ID, c.Params("peer_id")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) unblockPeer(c *fiber.Ctx) error {
	if err := s.blocks.Unblock(c.Context(), currentUser(c).ID, c.Params("peer_id")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) blockStatus(c *fiber.Ctx) error {
	status, err := s.blocks.Status(c.Context(), currentUser(c).ID, c.Params("peer_id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(status)
}

func (s *Server) createGroup(c *fiber.Ctx) error {
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	g, err := s.groups.Create(c.Context(), currentUser(c), req.Name, req.Members)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(g)
}

func (s *Server) getGroup(c *fiber.Ctx) error {
	g, err := s.groups.Get(c.Context(), currentUser(c), c.Params("id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(g)
}

func (s *Server) deleteGroup(c *fiber.Ctx) error {
	if err := s.groups.Delete(c.Context(), currentUser(c), c.Params("id")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type membersRequest struct {
	Members []string `json:"members"`
}

func (s *Server) addMembers(c *fiber.Ctx) error {
	var req membersRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := s.groups.AddMembers(c.Context(), currentUser(c), c.Params("id"), req.Members); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) removeMembers(c *fiber.Ctx) error {
	var req membersRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := s.groups.RemoveMembers(c.Context(), currentUser(c), c.Params("id"), req.Members); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) makeAdmin(c *fiber.Ctx) error {
	if err := s.groups.MakeAdmin(c.Context(), currentUser(c), c.Params("id"), c.Params("member_id")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) removeAdmin(c *fiber.Ctx) error {
	if err := s.groups.RemoveAdmin(c.Context(), currentUser(c), c.Params("id"), c.Params("member_id")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) leaveGroup(c *fiber.Ctx) error {
	if err := s.groups.Leave(c.Context(), currentUser(c), c.Params("id")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) sendGroup(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	u := currentUser(c)
	msg := &model.Message{
		ID:       req.ID,
		Content:  req.Content,
		Type:     req.Type,
		FileName: req.FileName,
	}
	saved, err := s.groups.SendMessage(c.Context(), u, c.Params("id"), msg)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) editGroup(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := s.groups.EditMessage(c.Context(), currentUser(c), c.Params("id"), req.Content); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteGroupMessage(c *fiber.Ctx) error {
	if err := s.groups.DeleteMessage(c.Context(), currentUser(c), c.Params("id")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) reactGroup(c *fiber.Ctx) error {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := s.groups.ToggleReaction(c.Context(), currentUser(c), c.Params("id"), req.Emoji); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) uploadMedia(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"code": "validation", "error": "file form field is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return respondErr(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return respondErr(c, err)
	}
	up, err := s.blobs.Put(c.Context(), currentUser(c).ID, fh.Filename, fh.Header.Get("Content-Type"), data)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(up)
}
