package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/tabledrop/backend/internal/auth"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testJWTSecret = "test_jwt_secret_key"

func TestMain(m *testing.M) {
	// Initialize logger for tests
	_ = logger.Initialize("error", "")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// setupTestDB opens a named in-memory sqlite database and installs it
// as the global connection. Listings get a hand-written schema because
// their Postgres array columns don't AutoMigrate on sqlite.
func setupTestDB(t *testing.T, name string) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	database.DB = db

	err = db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ChatMessage{},
		&models.ForumThread{},
		&models.ForumReply{},
		&models.Report{},
	)
	require.NoError(t, err)

	err = db.Exec(`CREATE TABLE IF NOT EXISTS listings (
		id text PRIMARY KEY,
		owner_id text NOT NULL,
		title text NOT NULL,
		description text,
		categories text,
		photo_urls text,
		quantity integer DEFAULT 1,
		unit text,
		lat real NOT NULL,
		lng real NOT NULL,
		address text,
		pickup_start datetime,
		pickup_end datetime,
		status text DEFAULT 'available',
		reserved_by_id text,
		reserved_at datetime,
		created_at datetime,
		updated_at datetime,
		deleted_at datetime
	)`).Error
	require.NoError(t, err)

	return db
}

// createTestUser inserts a user and returns it with a valid token
func createTestUser(t *testing.T, svc *auth.Service, email, username string, role models.Role) (*models.User, string) {
	user := &models.User{
		Email:       email,
		Username:    username,
		DisplayName: username,
		Role:        role,
	}
	require.NoError(t, database.DB.Create(user).Error)

	resp, err := svc.GenerateTokenForUser(user)
	require.NoError(t, err)
	return user, resp.Token
}

// newTestRouter builds a gin engine with the full authenticated route
// surface the handler tests exercise
func newTestRouter(h *Handlers, svc *auth.Service) *gin.Engine {
	router := gin.New()

	api := router.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	authed := api.Group("")
	authed.Use(auth.Middleware(svc))
	{
		authed.GET("/users/me", h.GetMe)
		authed.PUT("/users/me", h.UpdateProfile)
		authed.GET("/users/me/listings", h.GetMyListings)
		authed.GET("/users/:id", h.GetUserProfile)

		authed.POST("/listings", h.CreateListing)
		authed.GET("/listings/:id", h.GetListing)
		authed.PUT("/listings/:id", h.UpdateListing)
		authed.DELETE("/listings/:id", h.DeleteListing)
		authed.POST("/listings/:id/reserve", h.ReserveListing)
		authed.POST("/listings/:id/cancel", h.CancelReservation)
		authed.POST("/listings/:id/complete", h.CompleteListing)
		authed.POST("/listings/:id/conversations", h.StartConversation)

		authed.GET("/discovery/nearby", h.GetNearbyListings)

		authed.GET("/conversations", h.GetConversations)
		authed.GET("/conversations/:id/messages", h.GetMessages)
		authed.POST("/conversations/:id/messages", h.SendMessage)
		authed.PUT("/conversations/:id/read", h.MarkConversationRead)

		authed.POST("/forum/threads", h.CreateThread)
		authed.GET("/forum/threads", h.GetThreads)
		authed.GET("/forum/threads/:id", h.GetThread)
		authed.GET("/forum/threads/:id/replies", h.GetReplies)
		authed.POST("/forum/threads/:id/replies", h.CreateReply)

		authed.POST("/reports", h.CreateReport)

		admin := authed.Group("/admin")
		admin.Use(auth.RequireAdmin())
		{
			admin.GET("/reports", h.ListReports)
			admin.PUT("/reports/:id", h.ResolveReport)
			admin.PUT("/listings/:id/hide", h.HideListing)
			admin.PUT("/forum/threads/:id/hide", h.HideThread)
			admin.PUT("/forum/threads/:id/lock", h.LockThread)
			admin.PUT("/forum/replies/:id/hide", h.HideReply)
			admin.PUT("/users/:id/ban", h.BanUser)
			admin.PUT("/users/:id/unban", h.UnbanUser)
		}
	}

	return router
}

// doJSON performs a request with an optional JSON body and bearer token
func doJSON(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseBody unmarshals a response recorder body into a map
func parseBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// newTestAuthService builds an auth service with the shared test secret
func newTestAuthService() *auth.Service {
	return auth.NewService([]byte(testJWTSecret), 24*time.Hour)
}
