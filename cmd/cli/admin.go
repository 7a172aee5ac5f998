package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/models"
)

var revokeAdmin bool

var promoteCmd = &cobra.Command{
	Use:   "promote-admin <email>",
	Short: "Grant (or revoke) moderation privileges for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var user models.User
		if err := database.DB.Where("LOWER(email) = LOWER(?)", args[0]).First(&user).Error; err != nil {
			return fmt.Errorf("user not found: %s", args[0])
		}

		if revokeAdmin {
			if !user.IsAdmin() {
				fmt.Printf("⚠️  User %s is not an admin\n", user.Username)
				return nil
			}
			if err := database.DB.Model(&user).Update("role", models.RoleUser).Error; err != nil {
				return fmt.Errorf("failed to revoke admin privileges: %w", err)
			}
			fmt.Printf("✓ Admin privileges revoked for %s (%s)\n", user.Username, user.Email)
			return nil
		}

		if user.IsAdmin() {
			fmt.Printf("⚠️  User %s is already an admin\n", user.Username)
			return nil
		}
		if err := database.DB.Model(&user).Update("role", models.RoleAdmin).Error; err != nil {
			return fmt.Errorf("failed to grant admin privileges: %w", err)
		}

		fmt.Printf("✓ Admin privileges granted to %s (%s)\n", user.Username, user.Email)
		fmt.Printf("  User ID: %s\n", user.ID)
		fmt.Printf("  The user must log out and log back in for changes to take effect\n")
		return nil
	},
}

var (
	banReason string
	unban     bool
)

var banCmd = &cobra.Command{
	Use:   "ban <email>",
	Short: "Suspend (or reinstate) an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var user models.User
		if err := database.DB.Where("LOWER(email) = LOWER(?)", args[0]).First(&user).Error; err != nil {
			return fmt.Errorf("user not found: %s", args[0])
		}

		if unban {
			if err := database.DB.Model(&user).Updates(map[string]interface{}{
				"is_banned":  false,
				"banned_at":  nil,
				"ban_reason": "",
			}).Error; err != nil {
				return fmt.Errorf("failed to unban user: %w", err)
			}
			fmt.Printf("✓ Account reinstated: %s (%s)\n", user.Username, user.Email)
			return nil
		}

		if banReason == "" {
			return fmt.Errorf("--reason is required when banning")
		}
		if user.IsAdmin() {
			return fmt.Errorf("admins cannot be banned")
		}

		now := time.Now()
		if err := database.DB.Model(&user).Updates(map[string]interface{}{
			"is_banned":  true,
			"banned_at":  now,
			"ban_reason": banReason,
		}).Error; err != nil {
			return fmt.Errorf("failed to ban user: %w", err)
		}
		fmt.Printf("✓ Account suspended: %s (%s)\n", user.Username, user.Email)
		fmt.Printf("  Reason: %s\n", banReason)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print database counts for the deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		counts := []struct {
			label string
			model interface{}
			where []interface{}
		}{
			{"Users", &models.User{}, nil},
			{"  banned", &models.User{}, []interface{}{"is_banned = ?", true}},
			{"Listings", &models.Listing{}, nil},
			{"  available", &models.Listing{}, []interface{}{"status = ?", models.ListingAvailable}},
			{"  reserved", &models.Listing{}, []interface{}{"status = ?", models.ListingReserved}},
			{"  given", &models.Listing{}, []interface{}{"status = ?", models.ListingGiven}},
			{"Conversations", &models.Conversation{}, nil},
			{"Chat messages", &models.ChatMessage{}, nil},
			{"Forum threads", &models.ForumThread{}, nil},
			{"Forum replies", &models.ForumReply{}, nil},
			{"Open reports", &models.Report{}, []interface{}{"status = ?", models.ReportOpen}},
		}

		for _, c := range counts {
			var n int64
			q := database.DB.Model(c.model)
			if c.where != nil {
				q = q.Where(c.where[0], c.where[1:]...)
			}
			if err := q.Count(&n).Error; err != nil {
				return fmt.Errorf("failed to count %s: %w", c.label, err)
			}
			fmt.Printf("%-16s %d\n", c.label+":", n)
		}
		return nil
	},
}

func init() {
	promoteCmd.Flags().BoolVar(&revokeAdmin, "revoke", false, "Revoke admin privileges instead of granting")
	banCmd.Flags().StringVar(&banReason, "reason", "", "Reason shown in moderation logs")
	banCmd.Flags().BoolVar(&unban, "unban", false, "Reinstate the account instead of banning")
}
