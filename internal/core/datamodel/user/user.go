package user

import "time"

// User mirrors the marketplace users table. Only the columns this service
// reads are mapped: disbursement phone numbers and role flags.
type User struct {
	ID           string    `gorm:"primaryKey;type:uuid"`
	Email        string    `gorm:"column:email"`
	Name         string    `gorm:"column:name"`
	PasswordHash string    `gorm:"column:password_hash"`
	PhoneNumber  *string   `gorm:"column:phone_number"`
	MpesaPhone   *string   `gorm:"column:mpesa_phone"`
	Role         string    `gorm:"column:role;default:guest"`
	IsActive     bool      `gorm:"column:is_active;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt    time.Time `gorm:"column:updated_at;default:now()"`
}

func (User) TableName() string {
	return "users"
}

// DisbursementPhone resolves the number payouts go to: the dedicated M-Pesa
// phone when set, the profile phone otherwise. Empty when neither exists.
func (u *User) DisbursementPhone() string {
	if u.MpesaPhone != nil && *u.MpesaPhone != "" {
		return *u.MpesaPhone
	}
	if u.PhoneNumber != nil && *u.PhoneNumber != "" {
		return *u.PhoneNumber
	}
	return ""
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
