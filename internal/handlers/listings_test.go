package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/tabledrop/backend/internal/auth"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/models"
)

type ListingsTestSuite struct {
	suite.Suite
	router *gin.Engine
	svc    *auth.Service

	owner      *models.User
	ownerTok   string
	neighbor   *models.User
	neighborTk string
}

func (suite *ListingsTestSuite) SetupSuite() {
	setupTestDB(suite.T(), "listingstest")
	suite.svc = newTestAuthService()

	h := NewHandlers(suite.svc)
	suite.router = newTestRouter(h, suite.svc)
}

func (suite *ListingsTestSuite) SetupTest() {
	database.DB.Exec("DELETE FROM listings")
	database.DB.Exec("DELETE FROM users")

	suite.owner, suite.ownerTok = createTestUser(suite.T(), suite.svc, "maria@neighborhood.org", "mariashares", models.RoleUser)
	suite.neighbor, suite.neighborTk = createTestUser(suite.T(), suite.svc, "tom@neighborhood.org", "tomnextdoor", models.RoleUser)
}

func (suite *ListingsTestSuite) createListing(ownerID string, status models.ListingStatus) *models.Listing {
	listing := &models.Listing{
		OwnerID:    ownerID,
		Title:      "Sourdough loaves",
		Categories: pq.StringArray{"bread"},
		Quantity:   3,
		Lat:        52.3676,
		Lng:        4.9041,
		Status:     status,
	}
	suite.Require().NoError(database.DB.Create(listing).Error)
	return listing
}

func (suite *ListingsTestSuite) TestCreateListing() {
	w := doJSON(suite.router, "POST", "/api/v1/listings", suite.ownerTok, gin.H{
		"title":      "Leftover lasagna",
		"categories": []string{"meals"},
		"lat":        52.37,
		"lng":        4.89,
	})
	suite.Equal(http.StatusCreated, w.Code)

	body := parseBody(suite.T(), w)
	listing := body["listing"].(map[string]interface{})
	suite.Equal("Leftover lasagna", listing["title"])
	suite.Equal("available", listing["status"])
	suite.Equal(float64(1), listing["quantity"]) // defaults when omitted
	suite.Equal(suite.owner.ID, listing["owner_id"])
}

func (suite *ListingsTestSuite) TestCreateListingValidation() {
	// Missing title
	w := doJSON(suite.router, "POST", "/api/v1/listings", suite.ownerTok, gin.H{
		"lat": 52.37,
		"lng": 4.89,
	})
	suite.Equal(http.StatusBadRequest, w.Code)

	// Pickup window ends before it starts
	w = doJSON(suite.router, "POST", "/api/v1/listings", suite.ownerTok, gin.H{
		"title":        "Backwards window",
		"lat":          52.37,
		"lng":          4.89,
		"pickup_start": "2026-08-26T18:00:00Z",
		"pickup_end":   "2026-08-26T12:00:00Z",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *ListingsTestSuite) TestCreateListingRequiresAuth() {
	w := doJSON(suite.router, "POST", "/api/v1/listings", "", gin.H{
		"title": "No token",
		"lat":   52.37,
		"lng":   4.89,
	})
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *ListingsTestSuite) TestGetListing() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "GET", "/api/v1/listings/"+listing.ID, suite.neighborTk, nil)
	suite.Equal(http.StatusOK, w.Code)

	body := parseBody(suite.T(), w)
	got := body["listing"].(map[string]interface{})
	suite.Equal(listing.ID, got["id"])
	suite.Equal("Sourdough loaves", got["title"])
}

func (suite *ListingsTestSuite) TestGetListingNotFound() {
	w := doJSON(suite.router, "GET", "/api/v1/listings/nonexistent", suite.ownerTok, nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *ListingsTestSuite) TestHiddenListingVisibility() {
	listing := suite.createListing(suite.owner.ID, models.ListingHidden)

	// Other users get a 404
	w := doJSON(suite.router, "GET", "/api/v1/listings/"+listing.ID, suite.neighborTk, nil)
	suite.Equal(http.StatusNotFound, w.Code)

	// The owner still sees it
	w = doJSON(suite.router, "GET", "/api/v1/listings/"+listing.ID, suite.ownerTok, nil)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *ListingsTestSuite) TestUpdateListing() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "PUT", "/api/v1/listings/"+listing.ID, suite.ownerTok, gin.H{
		"title":    "Sourdough loaves (day old)",
		"quantity": 2,
	})
	suite.Equal(http.StatusOK, w.Code)

	var updated models.Listing
	suite.Require().NoError(database.DB.First(&updated, "id = ?", listing.ID).Error)
	suite.Equal("Sourdough loaves (day old)", updated.Title)
	suite.Equal(2, updated.Quantity)
}

func (suite *ListingsTestSuite) TestUpdateListingOwnerOnly() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "PUT", "/api/v1/listings/"+listing.ID, suite.neighborTk, gin.H{
		"title": "Hijacked title",
	})
	suite.Equal(http.StatusForbidden, w.Code)
}

func (suite *ListingsTestSuite) TestUpdateCompletedListingRejected() {
	listing := suite.createListing(suite.owner.ID, models.ListingGiven)

	w := doJSON(suite.router, "PUT", "/api/v1/listings/"+listing.ID, suite.ownerTok, gin.H{
		"title": "Too late to edit",
	})
	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *ListingsTestSuite) TestDeleteListing() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "DELETE", "/api/v1/listings/"+listing.ID, suite.ownerTok, nil)
	suite.Equal(http.StatusOK, w.Code)

	// Soft deleted: default scope no longer finds it
	var count int64
	database.DB.Model(&models.Listing{}).Where("id = ?", listing.ID).Count(&count)
	suite.Equal(int64(0), count)
}

func (suite *ListingsTestSuite) TestReserveListing() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", suite.neighborTk, nil)
	suite.Equal(http.StatusOK, w.Code)

	var reserved models.Listing
	suite.Require().NoError(database.DB.First(&reserved, "id = ?", listing.ID).Error)
	suite.Equal(models.ListingReserved, reserved.Status)
	suite.Require().NotNil(reserved.ReservedByID)
	suite.Equal(suite.neighbor.ID, *reserved.ReservedByID)
	suite.NotNil(reserved.ReservedAt)
}

func (suite *ListingsTestSuite) TestReserveOwnListingRejected() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", suite.ownerTok, nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *ListingsTestSuite) TestReserveAlreadyReservedConflict() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", suite.neighborTk, nil)
	suite.Equal(http.StatusOK, w.Code)

	// A second taker loses
	_, lateTok := createTestUser(suite.T(), suite.svc, "late@neighborhood.org", "latecomer", models.RoleUser)
	w = doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", lateTok, nil)
	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *ListingsTestSuite) TestReserveRaceSingleWinner() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	// Ten takers hammer the same listing; the conditional update lets
	// exactly one through
	wins := 0
	for i := 0; i < 10; i++ {
		_, tok := createTestUser(suite.T(), suite.svc,
			fmt.Sprintf("taker%d@neighborhood.org", i),
			fmt.Sprintf("taker%d", i), models.RoleUser)
		w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", tok, nil)
		if w.Code == http.StatusOK {
			wins++
		} else {
			suite.Equal(http.StatusConflict, w.Code)
		}
	}
	suite.Equal(1, wins)
}

func (suite *ListingsTestSuite) TestCancelReservation() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", suite.neighborTk, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	// The reserver backs out
	w = doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/cancel", suite.neighborTk, nil)
	suite.Equal(http.StatusOK, w.Code)

	var cancelled models.Listing
	suite.Require().NoError(database.DB.First(&cancelled, "id = ?", listing.ID).Error)
	suite.Equal(models.ListingAvailable, cancelled.Status)
	suite.Nil(cancelled.ReservedByID)
	suite.Nil(cancelled.ReservedAt)
}

func (suite *ListingsTestSuite) TestCancelReservationByOwner() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", suite.neighborTk, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	// No-show: the owner releases the reservation
	w = doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/cancel", suite.ownerTok, nil)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *ListingsTestSuite) TestCancelByStrangerRejected() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", suite.neighborTk, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	_, strangerTok := createTestUser(suite.T(), suite.svc, "stranger@neighborhood.org", "stranger", models.RoleUser)
	w = doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/cancel", strangerTok, nil)
	suite.Equal(http.StatusForbidden, w.Code)
}

func (suite *ListingsTestSuite) TestCompleteListing() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", suite.neighborTk, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/complete", suite.ownerTok, nil)
	suite.Equal(http.StatusOK, w.Code)

	var given models.Listing
	suite.Require().NoError(database.DB.First(&given, "id = ?", listing.ID).Error)
	suite.Equal(models.ListingGiven, given.Status)
}

func (suite *ListingsTestSuite) TestCompleteUnreservedRejected() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/complete", suite.ownerTok, nil)
	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *ListingsTestSuite) TestCompleteByNonOwnerRejected() {
	listing := suite.createListing(suite.owner.ID, models.ListingAvailable)

	w := doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/reserve", suite.neighborTk, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = doJSON(suite.router, "POST", "/api/v1/listings/"+listing.ID+"/complete", suite.neighborTk, nil)
	suite.Equal(http.StatusForbidden, w.Code)
}

func (suite *ListingsTestSuite) TestGetMyListings() {
	suite.createListing(suite.owner.ID, models.ListingAvailable)
	suite.createListing(suite.owner.ID, models.ListingGiven)
	suite.createListing(suite.neighbor.ID, models.ListingAvailable)

	w := doJSON(suite.router, "GET", "/api/v1/users/me/listings", suite.ownerTok, nil)
	suite.Equal(http.StatusOK, w.Code)

	body := parseBody(suite.T(), w)
	suite.Equal(float64(2), body["count"])
}

func TestListingsTestSuite(t *testing.T) {
	suite.Run(t, new(ListingsTestSuite))
}
