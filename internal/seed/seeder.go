package seed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/lib/pq"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// Listing categories used across the seed data
var categories = []string{
	"bread", "produce", "meals", "dairy", "pantry", "baked-goods", "drinks",
}

var foodTitles = []string{
	"Sourdough loaves", "Garden tomatoes", "Leftover lasagna", "Homemade hummus",
	"Apple pie", "Too many zucchini", "Fresh eggs", "Banana bread",
	"Half a birthday cake", "Jar of pickles", "Pumpkin soup", "Surplus potatoes",
	"Elderflower cordial", "Bag of oranges", "Veggie curry", "Rye crackers",
}

var forumTopics = []string{
	"Best way to store bread?", "Community fridge locations?",
	"Anyone want weekly veggie box shares?", "Canning workshop this Saturday",
	"Too many apples - recipe ideas?", "New to the neighborhood, how does this work?",
}

// SeedDev seeds the development database with a realistic neighborhood
func (s *Seeder) SeedDev() error {
	log := func(msg string) {
		logger.Log.Info(msg)
	}

	log("Creating users...")
	users, err := s.seedUsers(50)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	log("Creating listings...")
	listings, err := s.seedListings(users, 200)
	if err != nil {
		return fmt.Errorf("failed to seed listings: %w", err)
	}

	log("Creating conversations...")
	if err := s.seedConversations(users, listings, 80); err != nil {
		return fmt.Errorf("failed to seed conversations: %w", err)
	}

	log("Creating forum threads...")
	if err := s.seedForum(users, 20); err != nil {
		return fmt.Errorf("failed to seed forum: %w", err)
	}

	log("Creating reports...")
	if err := s.seedReports(users, listings, 10); err != nil {
		return fmt.Errorf("failed to seed reports: %w", err)
	}

	return nil
}

// SeedTest seeds the test database with a small fixed cast
func (s *Seeder) SeedTest() error {
	specs := []struct {
		username    string
		email       string
		displayName string
		role        models.Role
	}{
		{"maria", "maria@example.com", "Maria Santos", models.RoleUser},
		{"tom", "tom@example.com", "Tom Okafor", models.RoleUser},
		{"priya", "priya@example.com", "Priya Nair", models.RoleUser},
		{"mod", "mod@example.com", "The Moderator", models.RoleAdmin},
	}

	var users []models.User
	for _, spec := range specs {
		var user models.User
		err := s.db.Where("username = ? OR email = ?", spec.username, spec.email).First(&user).Error
		if err == nil {
			users = append(users, user)
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		hashStr := string(hash)

		user = models.User{
			Username:     spec.username,
			Email:        spec.email,
			DisplayName:  spec.displayName,
			Role:         spec.role,
			PasswordHash: &hashStr,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create test user %s: %w", spec.username, err)
		}
		users = append(users, user)
	}

	listings, err := s.seedListings(users, 10)
	if err != nil {
		return fmt.Errorf("failed to seed listings: %w", err)
	}
	if err := s.seedConversations(users, listings, 5); err != nil {
		return fmt.Errorf("failed to seed conversations: %w", err)
	}
	return s.seedForum(users, 3)
}

// Clean removes all seeded data. Order matters for foreign keys.
func (s *Seeder) Clean() error {
	tables := []string{
		"reports", "chat_messages", "conversations",
		"forum_replies", "forum_threads", "listings", "users",
	}
	for _, table := range tables {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) seedUsers(count int) ([]models.User, error) {
	users := make([]models.User, 0, count)

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	hashStr := string(hash)

	for i := 0; i < count; i++ {
		lat, lng := neighborhoodPoint()
		user := models.User{
			Username:     fmt.Sprintf("%s%d", gofakeit.Username(), i),
			Email:        fmt.Sprintf("seed%d_%s", i, gofakeit.Email()),
			DisplayName:  gofakeit.Name(),
			Bio:          gofakeit.Sentence(10),
			PasswordHash: &hashStr,
			Lat:          &lat,
			Lng:          &lng,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Seeder) seedListings(users []models.User, count int) ([]models.Listing, error) {
	listings := make([]models.Listing, 0, count)

	for i := 0; i < count; i++ {
		owner := users[rand.Intn(len(users))]
		lat, lng := neighborhoodPoint()

		start := time.Now().Add(time.Duration(rand.Intn(6)) * time.Hour)
		end := start.Add(time.Duration(4+rand.Intn(44)) * time.Hour)

		listing := models.Listing{
			OwnerID:     owner.ID,
			Title:       foodTitles[rand.Intn(len(foodTitles))],
			Description: gofakeit.Sentence(15),
			Categories:  pq.StringArray{categories[rand.Intn(len(categories))]},
			Quantity:    1 + rand.Intn(5),
			Unit:        "portions",
			Lat:         lat,
			Lng:         lng,
			Address:     gofakeit.Street(),
			PickupStart: &start,
			PickupEnd:   &end,
			Status:      models.ListingAvailable,
		}

		// A slice of the history is already reserved or given away
		switch rand.Intn(10) {
		case 0, 1:
			taker := users[rand.Intn(len(users))]
			if taker.ID != owner.ID {
				now := time.Now()
				listing.Status = models.ListingReserved
				listing.ReservedByID = &taker.ID
				listing.ReservedAt = &now
			}
		case 2:
			listing.Status = models.ListingGiven
		}

		if err := s.db.Create(&listing).Error; err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (s *Seeder) seedConversations(users []models.User, listings []models.Listing, count int) error {
	for i := 0; i < count && len(listings) > 0; i++ {
		listing := listings[rand.Intn(len(listings))]
		requester := users[rand.Intn(len(users))]
		if requester.ID == listing.OwnerID {
			continue
		}

		conv := models.Conversation{
			ListingID:   listing.ID,
			OwnerID:     listing.OwnerID,
			RequesterID: requester.ID,
		}
		if err := s.db.Where("listing_id = ? AND requester_id = ?", listing.ID, requester.ID).
			FirstOrCreate(&conv).Error; err != nil {
			return err
		}

		messageCount := 1 + rand.Intn(5)
		var lastAt time.Time
		for m := 0; m < messageCount; m++ {
			senderID := requester.ID
			if m%2 == 1 {
				senderID = listing.OwnerID
			}
			msg := models.ChatMessage{
				ConversationID: conv.ID,
				SenderID:       senderID,
				Body:           gofakeit.Sentence(8),
			}
			if err := s.db.Create(&msg).Error; err != nil {
				return err
			}
			lastAt = msg.CreatedAt
		}
		if err := s.db.Model(&conv).Update("last_message_at", lastAt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedForum(users []models.User, count int) error {
	for i := 0; i < count; i++ {
		author := users[rand.Intn(len(users))]
		thread := models.ForumThread{
			AuthorID: author.ID,
			Title:    forumTopics[rand.Intn(len(forumTopics))],
			Body:     gofakeit.Paragraph(1, 3, 12, " "),
			Category: []string{"general", "recipes", "gardening", "events"}[rand.Intn(4)],
		}
		if err := s.db.Create(&thread).Error; err != nil {
			return err
		}

		replyCount := rand.Intn(6)
		var lastAt *time.Time
		for r := 0; r < replyCount; r++ {
			reply := models.ForumReply{
				ThreadID: thread.ID,
				AuthorID: users[rand.Intn(len(users))].ID,
				Body:     gofakeit.Sentence(12),
			}
			if err := s.db.Create(&reply).Error; err != nil {
				return err
			}
			lastAt = &reply.CreatedAt
		}
		if replyCount > 0 {
			if err := s.db.Model(&thread).Updates(map[string]interface{}{
				"reply_count":   replyCount,
				"last_reply_at": lastAt,
			}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) seedReports(users []models.User, listings []models.Listing, count int) error {
	reasons := []string{"spam", "unsafe_food", "harassment", "other"}
	for i := 0; i < count && len(listings) > 0; i++ {
		reporter := users[rand.Intn(len(users))]
		listing := listings[rand.Intn(len(listings))]

		report := models.Report{
			ReporterID: reporter.ID,
			TargetType: models.ReportTargetListing,
			TargetID:   listing.ID,
			Reason:     reasons[rand.Intn(len(reasons))],
			Details:    gofakeit.Sentence(10),
		}
		// Skip duplicates: one open report per reporter per target
		var existing models.Report
		if err := s.db.Where("reporter_id = ? AND target_type = ? AND target_id = ?",
			reporter.ID, report.TargetType, listing.ID).First(&existing).Error; err == nil {
			continue
		}
		if err := s.db.Create(&report).Error; err != nil {
			return err
		}
	}
	return nil
}

// neighborhoodPoint returns a random coordinate within a few km of
// Amsterdam Centraal, so seeded listings cluster like a real neighborhood
func neighborhoodPoint() (float64, float64) {
	lat := 52.3791 + (rand.Float64()-0.5)*0.06
	lng := 4.9003 + (rand.Float64()-0.5)*0.09
	return lat, lng
}
