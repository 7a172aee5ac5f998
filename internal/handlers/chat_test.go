package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/tabledrop/backend/internal/auth"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/models"
)

type ChatTestSuite struct {
	suite.Suite
	router *gin.Engine
	svc    *auth.Service

	owner        *models.User
	ownerTok     string
	requester    *models.User
	requesterTok string
	listing      *models.Listing
}

func (suite *ChatTestSuite) SetupSuite() {
	setupTestDB(suite.T(), "chattest")
	suite.svc = newTestAuthService()

	h := NewHandlers(suite.svc)
	suite.router = newTestRouter(h, suite.svc)
}

func (suite *ChatTestSuite) SetupTest() {
	database.DB.Exec("DELETE FROM chat_messages")
	database.DB.Exec("DELETE FROM conversations")
	database.DB.Exec("DELETE FROM listings")
	database.DB.Exec("DELETE FROM users")

	suite.owner, suite.ownerTok = createTestUser(suite.T(), suite.svc, "maria@neighborhood.org", "mariashares", models.RoleUser)
	suite.requester, suite.requesterTok = createTestUser(suite.T(), suite.svc, "tom@neighborhood.org", "tomnextdoor", models.RoleUser)

	suite.listing = &models.Listing{
		OwnerID:    suite.owner.ID,
		Title:      "Garden tomatoes",
		Categories: pq.StringArray{"produce"},
		Lat:        52.3676,
		Lng:        4.9041,
		Status:     models.ListingAvailable,
	}
	suite.Require().NoError(database.DB.Create(suite.listing).Error)
}

func (suite *ChatTestSuite) startConversation() string {
	w := doJSON(suite.router, "POST", "/api/v1/listings/"+suite.listing.ID+"/conversations", suite.requesterTok, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	body := parseBody(suite.T(), w)
	conv := body["conversation"].(map[string]interface{})
	return conv["id"].(string)
}

func (suite *ChatTestSuite) TestStartConversation() {
	convID := suite.startConversation()
	suite.NotEmpty(convID)

	var conv models.Conversation
	suite.Require().NoError(database.DB.First(&conv, "id = ?", convID).Error)
	suite.Equal(suite.listing.ID, conv.ListingID)
	suite.Equal(suite.owner.ID, conv.OwnerID)
	suite.Equal(suite.requester.ID, conv.RequesterID)
}

func (suite *ChatTestSuite) TestStartConversationIsIdempotent() {
	first := suite.startConversation()
	second := suite.startConversation()
	suite.Equal(first, second)

	var count int64
	database.DB.Model(&models.Conversation{}).Count(&count)
	suite.Equal(int64(1), count)
}

func (suite *ChatTestSuite) TestStartConversationWithSelfRejected() {
	w := doJSON(suite.router, "POST", "/api/v1/listings/"+suite.listing.ID+"/conversations", suite.ownerTok, nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *ChatTestSuite) TestSendAndGetMessages() {
	convID := suite.startConversation()

	w := doJSON(suite.router, "POST", "/api/v1/conversations/"+convID+"/messages", suite.requesterTok, gin.H{
		"body": "Are the tomatoes still available?",
	})
	suite.Equal(http.StatusCreated, w.Code)

	w = doJSON(suite.router, "POST", "/api/v1/conversations/"+convID+"/messages", suite.ownerTok, gin.H{
		"body": "Yes! Pick up any time before 6.",
	})
	suite.Equal(http.StatusCreated, w.Code)

	// Newest first
	w = doJSON(suite.router, "GET", "/api/v1/conversations/"+convID+"/messages", suite.requesterTok, nil)
	suite.Equal(http.StatusOK, w.Code)

	body := parseBody(suite.T(), w)
	suite.Equal(float64(2), body["count"])
	messages := body["messages"].([]interface{})
	first := messages[0].(map[string]interface{})
	suite.Equal("Yes! Pick up any time before 6.", first["body"])
}

func (suite *ChatTestSuite) TestSendMessageBumpsActivity() {
	convID := suite.startConversation()

	w := doJSON(suite.router, "POST", "/api/v1/conversations/"+convID+"/messages", suite.requesterTok, gin.H{
		"body": "Hello!",
	})
	suite.Require().Equal(http.StatusCreated, w.Code)

	var conv models.Conversation
	suite.Require().NoError(database.DB.First(&conv, "id = ?", convID).Error)
	suite.NotNil(conv.LastMessageAt)
}

func (suite *ChatTestSuite) TestSendEmptyMessageRejected() {
	convID := suite.startConversation()

	w := doJSON(suite.router, "POST", "/api/v1/conversations/"+convID+"/messages", suite.requesterTok, gin.H{
		"body": "",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *ChatTestSuite) TestNonParticipantGetsNotFound() {
	convID := suite.startConversation()

	_, strangerTok := createTestUser(suite.T(), suite.svc, "stranger@neighborhood.org", "stranger", models.RoleUser)

	// 404, not 403: outsiders can't even confirm the conversation exists
	w := doJSON(suite.router, "GET", "/api/v1/conversations/"+convID+"/messages", strangerTok, nil)
	suite.Equal(http.StatusNotFound, w.Code)

	w = doJSON(suite.router, "POST", "/api/v1/conversations/"+convID+"/messages", strangerTok, gin.H{
		"body": "Let me in",
	})
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *ChatTestSuite) TestGetConversations() {
	suite.startConversation()

	w := doJSON(suite.router, "GET", "/api/v1/conversations", suite.ownerTok, nil)
	suite.Equal(http.StatusOK, w.Code)
	body := parseBody(suite.T(), w)
	suite.Equal(float64(1), body["count"])

	// A third user has none
	_, otherTok := createTestUser(suite.T(), suite.svc, "other@neighborhood.org", "otherperson", models.RoleUser)
	w = doJSON(suite.router, "GET", "/api/v1/conversations", otherTok, nil)
	suite.Equal(http.StatusOK, w.Code)
	body = parseBody(suite.T(), w)
	suite.Equal(float64(0), body["count"])
}

func (suite *ChatTestSuite) TestMarkConversationRead() {
	convID := suite.startConversation()

	for _, text := range []string{"First", "Second"} {
		w := doJSON(suite.router, "POST", "/api/v1/conversations/"+convID+"/messages", suite.requesterTok, gin.H{"body": text})
		suite.Require().Equal(http.StatusCreated, w.Code)
	}

	w := doJSON(suite.router, "PUT", "/api/v1/conversations/"+convID+"/read", suite.ownerTok, nil)
	suite.Equal(http.StatusOK, w.Code)
	body := parseBody(suite.T(), w)
	suite.Equal(float64(2), body["read_count"])

	// Second pass reads nothing new
	w = doJSON(suite.router, "PUT", "/api/v1/conversations/"+convID+"/read", suite.ownerTok, nil)
	suite.Equal(http.StatusOK, w.Code)
	body = parseBody(suite.T(), w)
	suite.Equal(float64(0), body["read_count"])
}

func (suite *ChatTestSuite) TestMarkReadSkipsOwnMessages() {
	convID := suite.startConversation()

	w := doJSON(suite.router, "POST", "/api/v1/conversations/"+convID+"/messages", suite.ownerTok, gin.H{"body": "Mine"})
	suite.Require().Equal(http.StatusCreated, w.Code)

	// Marking your own unanswered conversation read acknowledges nothing
	w = doJSON(suite.router, "PUT", "/api/v1/conversations/"+convID+"/read", suite.ownerTok, nil)
	suite.Equal(http.StatusOK, w.Code)
	body := parseBody(suite.T(), w)
	suite.Equal(float64(0), body["read_count"])
}

func TestChatTestSuite(t *testing.T) {
	suite.Run(t, new(ChatTestSuite))
}
