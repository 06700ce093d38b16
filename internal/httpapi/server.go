// Package httpapi is the REST surface: accounts, tokens, the room lobby
// and match history. Live gameplay never flows through here; the
// websocket hub is mounted alongside these routes.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gomoku-server/internal/auth"
	"gomoku-server/internal/metrics"
	"gomoku-server/internal/obslog"
	"gomoku-server/internal/store"
)

const (
	leaderboardLimit = 20
	defaultBoardSize = 15
)

type Server struct {
	st       *store.Store
	tokens   *auth.Manager
	hub      http.Handler
	staleAge time.Duration
}

func NewServer(st *store.Store, tokens *auth.Manager, hub http.Handler, staleAge time.Duration) *Server {
	return &Server{st: st, tokens: tokens, hub: hub, staleAge: staleAge}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/auth/register", s.register)
		api.POST("/auth/login", s.login)
		api.POST("/auth/refresh", s.refresh)
		api.POST("/auth/logout", s.requireAuth, s.logout)

		api.GET("/users/me", s.requireAuth, s.me)
		api.PUT("/users/me", s.requireAuth, s.updateProfile)
		api.GET("/users/:id", s.publicProfile)
		api.GET("/leaderboard", s.leaderboard)

		api.GET("/rooms", s.listRooms)
		api.POST("/rooms", s.requireAuth, s.createRoom)
		api.POST("/rooms/:id/join", s.requireAuth, s.joinRoom)
		api.POST("/rooms/:id/leave", s.requireAuth, s.leaveRoom)

		api.GET("/matches/history", s.requireAuth, s.history)
	}

	r.GET("/ws", gin.WrapH(s.hub))
	return r
}

const ctxUserID = "user_id"

func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		metrics.AuthFailures.WithLabelValues("http").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	uid, err := s.tokens.VerifyAccess(c.Request.Context(), token)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("http").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set(ctxUserID, uid)
	c.Next()
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Elo      int    `json:"elo"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
}

func toUserResponse(u *store.User, includeEmail bool) userResponse {
	r := userResponse{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Elo:      u.Elo,
		Wins:     u.Wins,
		Losses:   u.Losses,
		Draws:    u.Draws,
	}
	if includeEmail {
		r.Email = u.Email
	}
	return r
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
		FullName string `json:"full_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := s.st.Users.Create(c.Request.Context(), req.Username, strings.ToLower(req.Email), req.FullName, hash)
	if err != nil {
		// unique violation on username/email lands here
		c.JSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
		return
	}
	access, refresh, err := s.tokens.IssuePair(u.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	obslog.L().Info("user_registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	c.JSON(http.StatusCreated, gin.H{
		"user":   toUserResponse(u, true),
		"tokens": tokenResponse{AccessToken: access, RefreshToken: refresh},
	})
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := s.st.Users.GetByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil || auth.VerifySecret(u.PasswordHash, req.Password) != nil {
		metrics.AuthFailures.WithLabelValues("http").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	access, refresh, err := s.tokens.IssuePair(u.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":   toUserResponse(u, true),
		"tokens": tokenResponse{AccessToken: access, RefreshToken: refresh},
	})
}

func (s *Server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid, err := s.tokens.VerifyRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("http").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	access, refresh, err := s.tokens.IssuePair(uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh})
}

func (s *Server) logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.tokens.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (s *Server) me(c *gin.Context) {
	u, err := s.st.Users.GetByID(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(u, true))
}

func (s *Server) updateProfile(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		FullName string `json:"full_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := s.st.Users.UpdateProfile(c.Request.Context(), currentUser(c), req.Username, req.FullName)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(u, true))
}

func (s *Server) publicProfile(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad user id"})
		return
	}
	u, err := s.st.Users.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(u, false))
}

func (s *Server) leaderboard(c *gin.Context) {
	users, err := s.st.Users.Leaderboard(c.Request.Context(), leaderboardLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard unavailable"})
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u, false))
	}
	c.JSON(http.StatusOK, out)
}

type roomResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	HostID      int64  `json:"host_id"`
	HostName    string `json:"host_name,omitempty"`
	Player2ID   *int64 `json:"player2_id,omitempty"`
	Player2Name string `json:"player2_name,omitempty"`
	HasPassword bool   `json:"has_password"`
	BoardSize   int    `json:"board_size"`
	Status      string `json:"status"`
}

func (s *Server) listRooms(c *gin.Context) {
	ctx := c.Request.Context()
	// Sweep abandoned lobbies before listing so dead rooms never show.
	if n, err := s.st.Rooms.PruneStale(ctx, s.staleAge); err != nil {
		obslog.L().Warn("room_prune_failed", zap.Error(err))
	} else if n > 0 {
		obslog.L().Info("rooms_pruned", zap.Int64("count", n))
	}

	rooms, err := s.st.Rooms.ListWaiting(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "room list unavailable"})
		return
	}
	out := make([]roomResponse, 0, len(rooms))
	for _, r := range rooms {
		resp := roomResponse{
			ID:          r.ID,
			Name:        r.Name,
			HostID:      r.HostID,
			HostName:    r.HostName,
			HasPassword: r.HasPassword(),
			BoardSize:   r.BoardSize,
			Status:      string(r.Status),
		}
		if r.Player2ID.Valid {
			v := r.Player2ID.Int64
			resp.Player2ID = &v
		}
		if r.Player2Name.Valid {
			resp.Player2Name = r.Player2Name.String
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createRoom(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		Password  string `json:"password"`
		BoardSize int    `json:"board_size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	size := req.BoardSize
	if size == 0 {
		size = defaultBoardSize
	}
	if size != 15 && size != 19 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "board_size must be 15 or 19"})
		return
	}
	var hash string
	if req.Password != "" {
		h, err := auth.HashSecret(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
			return
		}
		hash = h
	}
	room, err := s.st.Rooms.Create(c.Request.Context(), req.Name, currentUser(c), hash, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}
	obslog.L().Info("room_created",
		zap.Int64("room_id", room.ID),
		zap.Int64("host_id", room.HostID),
		zap.Int("board_size", room.BoardSize))
	c.JSON(http.StatusCreated, roomResponse{
		ID:          room.ID,
		Name:        room.Name,
		HostID:      room.HostID,
		HasPassword: room.HasPassword(),
		BoardSize:   room.BoardSize,
		Status:      string(room.Status),
	})
}

func (s *Server) joinRoom(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad room id"})
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	// body is optional for open rooms
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	uid := currentUser(c)
	room, err := s.st.Rooms.GetByID(ctx, roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if room.HostID == uid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot join your own room"})
		return
	}
	if room.Status != store.RoomWaiting {
		c.JSON(http.StatusConflict, gin.H{"error": "room is not open"})
		return
	}
	if room.HasPassword() {
		if auth.VerifySecret(room.PasswordHash.String, req.Password) != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "wrong room password"})
			return
		}
	}
	seated, err := s.st.Rooms.SetPlayer2(ctx, roomID, uid)
	if err != nil {
		// a racing join won the seat
		c.JSON(http.StatusConflict, gin.H{"error": "room is not open"})
		return
	}
	obslog.L().Info("room_joined", zap.Int64("room_id", roomID), zap.Int64("user_id", uid))
	c.JSON(http.StatusOK, gin.H{
		"room_id":    seated.ID,
		"board_size": seated.BoardSize,
		"status":     string(seated.Status),
	})
}

func (s *Server) leaveRoom(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad room id"})
		return
	}
	ctx := c.Request.Context()
	uid := currentUser(c)
	room, err := s.st.Rooms.GetByID(ctx, roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	isHost, seated := room.Seat(uid)
	if !seated {
		c.JSON(http.StatusForbidden, gin.H{"error": "not in this room"})
		return
	}
	if isHost {
		if err := s.st.Rooms.Delete(ctx, roomID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not close room"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "room closed"})
		return
	}
	if err := s.st.Rooms.ClearPlayer2(ctx, roomID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left room"})
}

type historyResponse struct {
	MatchID  int64  `json:"match_id"`
	Opponent string `json:"opponent"`
	Result   string `json:"result"`
	Time     string `json:"time"`
}

func (s *Server) history(c *gin.Context) {
	entries, err := s.st.Matches.HistoryByUser(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{
			MatchID:  e.MatchID,
			Opponent: e.Opponent,
			Result:   e.Result,
			Time:     e.Time.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}
