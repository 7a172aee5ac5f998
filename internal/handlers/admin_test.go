package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/tabledrop/backend/internal/auth"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/models"
)

type AdminTestSuite struct {
	suite.Suite
	router *gin.Engine
	svc    *auth.Service

	admin       *models.User
	adminTok    string
	reporter    *models.User
	reporterTok string
}

func (suite *AdminTestSuite) SetupSuite() {
	setupTestDB(suite.T(), "admintest")
	suite.svc = newTestAuthService()

	h := NewHandlers(suite.svc)
	suite.router = newTestRouter(h, suite.svc)
}

func (suite *AdminTestSuite) SetupTest() {
	database.DB.Exec("DELETE FROM reports")
	database.DB.Exec("DELETE FROM forum_replies")
	database.DB.Exec("DELETE FROM forum_threads")
	database.DB.Exec("DELETE FROM listings")
	database.DB.Exec("DELETE FROM users")

	suite.admin, suite.adminTok = createTestUser(suite.T(), suite.svc, "mod@tabledrop.app", "themod", models.RoleAdmin)
	suite.reporter, suite.reporterTok = createTestUser(suite.T(), suite.svc, "tom@neighborhood.org", "tomnextdoor", models.RoleUser)
}

func (suite *AdminTestSuite) fileReport(targetType, targetID string) map[string]interface{} {
	w := doJSON(suite.router, "POST", "/api/v1/reports", suite.reporterTok, gin.H{
		"target_type": targetType,
		"target_id":   targetID,
		"reason":      "spam",
		"details":     "Posting the same thing every hour",
	})
	suite.Require().Equal(http.StatusCreated, w.Code)
	return parseBody(suite.T(), w)["report"].(map[string]interface{})
}

func (suite *AdminTestSuite) TestCreateReport() {
	report := suite.fileReport("listing", "some-listing-id")
	suite.Equal("open", report["status"])
	suite.Equal(suite.reporter.ID, report["reporter_id"])
}

func (suite *AdminTestSuite) TestCreateReportUnknownTargetRejected() {
	w := doJSON(suite.router, "POST", "/api/v1/reports", suite.reporterTok, gin.H{
		"target_type": "spaceship",
		"target_id":   "x",
		"reason":      "spam",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *AdminTestSuite) TestDuplicateReportReturnsExisting() {
	first := suite.fileReport("listing", "some-listing-id")

	w := doJSON(suite.router, "POST", "/api/v1/reports", suite.reporterTok, gin.H{
		"target_type": "listing",
		"target_id":   "some-listing-id",
		"reason":      "spam",
	})
	suite.Equal(http.StatusOK, w.Code)

	body := parseBody(suite.T(), w)
	suite.Equal(true, body["duplicate"])
	existing := body["report"].(map[string]interface{})
	suite.Equal(first["id"], existing["id"])

	var count int64
	database.DB.Model(&models.Report{}).Count(&count)
	suite.Equal(int64(1), count)
}

func (suite *AdminTestSuite) TestListReports() {
	suite.fileReport("listing", "listing-a")
	suite.fileReport("user", "user-b")

	w := doJSON(suite.router, "GET", "/api/v1/admin/reports", suite.adminTok, nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal(float64(2), parseBody(suite.T(), w)["count"])
}

func (suite *AdminTestSuite) TestAdminEndpointsRejectNonAdmins() {
	w := doJSON(suite.router, "GET", "/api/v1/admin/reports", suite.reporterTok, nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = doJSON(suite.router, "PUT", "/api/v1/admin/users/"+suite.admin.ID+"/ban", suite.reporterTok, gin.H{"reason": "nope"})
	suite.Equal(http.StatusForbidden, w.Code)
}

func (suite *AdminTestSuite) TestResolveReport() {
	report := suite.fileReport("listing", "listing-a")
	reportID := report["id"].(string)

	w := doJSON(suite.router, "PUT", "/api/v1/admin/reports/"+reportID, suite.adminTok, gin.H{
		"status":     "resolved",
		"resolution": "Listing hidden",
	})
	suite.Equal(http.StatusOK, w.Code)

	var resolved models.Report
	suite.Require().NoError(database.DB.First(&resolved, "id = ?", reportID).Error)
	suite.Equal(models.ReportResolved, resolved.Status)
	suite.Require().NotNil(resolved.ResolvedByID)
	suite.Equal(suite.admin.ID, *resolved.ResolvedByID)
	suite.NotNil(resolved.ResolvedAt)

	// Already closed: a second resolution conflicts
	w = doJSON(suite.router, "PUT", "/api/v1/admin/reports/"+reportID, suite.adminTok, gin.H{
		"status": "dismissed",
	})
	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *AdminTestSuite) TestResolveReportInvalidStatus() {
	report := suite.fileReport("listing", "listing-a")

	w := doJSON(suite.router, "PUT", "/api/v1/admin/reports/"+report["id"].(string), suite.adminTok, gin.H{
		"status": "maybe-later",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *AdminTestSuite) TestHideListing() {
	listing := &models.Listing{
		OwnerID: suite.reporter.ID,
		Title:   "Questionable casserole",
		Lat:     52.37,
		Lng:     4.89,
		Status:  models.ListingAvailable,
	}
	suite.Require().NoError(database.DB.Create(listing).Error)

	w := doJSON(suite.router, "PUT", "/api/v1/admin/listings/"+listing.ID+"/hide", suite.adminTok, nil)
	suite.Equal(http.StatusOK, w.Code)

	var hidden models.Listing
	suite.Require().NoError(database.DB.First(&hidden, "id = ?", listing.ID).Error)
	suite.Equal(models.ListingHidden, hidden.Status)
}

func (suite *AdminTestSuite) TestHideAndLockThread() {
	thread := &models.ForumThread{
		AuthorID: suite.reporter.ID,
		Title:    "Flame war",
		Body:     "You call that bread?",
	}
	suite.Require().NoError(database.DB.Create(thread).Error)

	w := doJSON(suite.router, "PUT", "/api/v1/admin/forum/threads/"+thread.ID+"/lock", suite.adminTok, nil)
	suite.Equal(http.StatusOK, w.Code)

	w = doJSON(suite.router, "PUT", "/api/v1/admin/forum/threads/"+thread.ID+"/hide", suite.adminTok, nil)
	suite.Equal(http.StatusOK, w.Code)

	var moderated models.ForumThread
	suite.Require().NoError(database.DB.First(&moderated, "id = ?", thread.ID).Error)
	suite.True(moderated.IsLocked)
	suite.True(moderated.IsHidden)

	// Unknown thread IDs 404
	w = doJSON(suite.router, "PUT", "/api/v1/admin/forum/threads/nonexistent/hide", suite.adminTok, nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *AdminTestSuite) TestHideReply() {
	thread := &models.ForumThread{
		AuthorID: suite.reporter.ID,
		Title:    "Normal thread",
		Body:     "Perfectly fine discussion",
	}
	suite.Require().NoError(database.DB.Create(thread).Error)
	reply := &models.ForumReply{
		ThreadID: thread.ID,
		AuthorID: suite.reporter.ID,
		Body:     "Rude reply",
	}
	suite.Require().NoError(database.DB.Create(reply).Error)

	w := doJSON(suite.router, "PUT", "/api/v1/admin/forum/replies/"+reply.ID+"/hide", suite.adminTok, nil)
	suite.Equal(http.StatusOK, w.Code)

	var hidden models.ForumReply
	suite.Require().NoError(database.DB.First(&hidden, "id = ?", reply.ID).Error)
	suite.True(hidden.IsHidden)
}

func (suite *AdminTestSuite) TestBanAndUnbanUser() {
	w := doJSON(suite.router, "PUT", "/api/v1/admin/users/"+suite.reporter.ID+"/ban", suite.adminTok, gin.H{
		"reason": "Repeated spam listings",
	})
	suite.Equal(http.StatusOK, w.Code)

	var banned models.User
	suite.Require().NoError(database.DB.First(&banned, "id = ?", suite.reporter.ID).Error)
	suite.True(banned.IsBanned)
	suite.Equal("Repeated spam listings", banned.BanReason)
	suite.NotNil(banned.BannedAt)

	// Banned users' tokens stop working
	w = doJSON(suite.router, "GET", "/api/v1/users/me", suite.reporterTok, nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = doJSON(suite.router, "PUT", "/api/v1/admin/users/"+suite.reporter.ID+"/unban", suite.adminTok, nil)
	suite.Equal(http.StatusOK, w.Code)

	var unbanned models.User
	suite.Require().NoError(database.DB.First(&unbanned, "id = ?", suite.reporter.ID).Error)
	suite.False(unbanned.IsBanned)

	w = doJSON(suite.router, "GET", "/api/v1/users/me", suite.reporterTok, nil)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *AdminTestSuite) TestBanGuards() {
	w := doJSON(suite.router, "PUT", "/api/v1/admin/users/"+suite.admin.ID+"/ban", suite.adminTok, gin.H{
		"reason": "Self ban",
	})
	suite.Equal(http.StatusBadRequest, w.Code)

	other, _ := createTestUser(suite.T(), suite.svc, "mod2@tabledrop.app", "secondmod", models.RoleAdmin)
	w = doJSON(suite.router, "PUT", "/api/v1/admin/users/"+other.ID+"/ban", suite.adminTok, gin.H{
		"reason": "Admin feud",
	})
	suite.Equal(http.StatusForbidden, w.Code)

	// Reason is required
	w = doJSON(suite.router, "PUT", "/api/v1/admin/users/"+suite.reporter.ID+"/ban", suite.adminTok, gin.H{})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func TestAdminTestSuite(t *testing.T) {
	suite.Run(t, new(AdminTestSuite))
}
