package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample users and a booking for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		db, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			fmt.Println("Clearing existing data...")
			for _, table := range []string{"transactions", "payouts", "bookings", "users"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		guestID := seedUser(db, "wanjiku@mail.com", "Wanjiku Guest", string(hash), "guest", "0712345678", "")
		hostID := seedUser(db, "otieno@mail.com", "Otieno Host", string(hash), "host", "0722000111", "254733999888")
		seedUser(db, "admin@kodisha.co.ke", "Kodisha Admin", string(hash), "admin", "", "")

		if guestID != "" && hostID != "" {
			var exists int
			row := db.Raw("SELECT 1 FROM bookings WHERE guest_id = ? AND host_id = ?", guestID, hostID).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Println("demo booking already exists")
			} else {
				bookingID := uuid.NewString()
				if err := db.Exec(
					"INSERT INTO bookings (id, guest_id, host_id, payment_status, created_at, updated_at) VALUES (?, ?, ?, 'unpaid', now(), now())",
					bookingID, guestID, hostID).Error; err != nil {
					log.Fatalf("failed to insert demo booking: %v", err)
				}
				fmt.Println("Seeded demo booking:", bookingID)
			}
		}

		fmt.Println("Seeding complete. All users share the password:", password)
	},
}

func seedUser(db *gorm.DB, email, name, hash, role, phone, mpesaPhone string) string {
	var id string
	row := db.Raw("SELECT id FROM users WHERE email = ?", email).Row()
	if err := row.Scan(&id); err == nil {
		fmt.Printf("%s user already exists\n", role)
		return id
	}

	id = uuid.NewString()
	var phonePtr, mpesaPtr *string
	if phone != "" {
		phonePtr = &phone
	}
	if mpesaPhone != "" {
		mpesaPtr = &mpesaPhone
	}

	if err := db.Exec(
		"INSERT INTO users (id, email, name, password_hash, phone_number, mpesa_phone, role, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, true, now(), now())",
		id, email, name, hash, phonePtr, mpesaPtr, role).Error; err != nil {
		log.Fatalf("failed to insert %s user: %v", role, err)
	}

	fmt.Printf("Seeded %s user: %s\n", role, email)
	return id
}
