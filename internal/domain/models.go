// Package domain defines the persistence models for subscribers, their
// confirmation tokens and the admin users who publish newsletter issues.
// These types are mapped with GORM and form the core data layer of the
// newsletter backend.
package domain

import "time"

// Subscription statuses.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusConfirmed           = "confirmed"
)

// Subscriber is a person who asked to receive newsletter issues.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: unique address, validated before insert.
//   - Name: display name, validated before insert.
//   - SubscribedAt: time the subscription request was accepted.
//   - Status: pending_confirmation until the emailed token is used.
type Subscriber struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"         gorm:"type:varchar(320);not null;uniqueIndex:ux_subscriptions_email"`
	Name         string    `json:"name"          gorm:"type:text;not null"`
	SubscribedAt time.Time `json:"subscribed_at" gorm:"not null;index:idx_subscriptions_status,priority:2"`
	Status       string    `json:"status"        gorm:"type:varchar(32);not null;index:idx_subscriptions_status,priority:1;check:status IN ('pending_confirmation','confirmed')"`
}

// TableName returns the database table name for Subscriber.
func (Subscriber) TableName() string { return "subscriptions" }

// SubscriptionToken links an opaque confirmation token to a subscriber.
// Tokens are never reused across subscribers; the subscriber side of the
// relation is cascade-deleted.
type SubscriptionToken struct {
	Token        string `gorm:"type:varchar(25);primaryKey"`
	SubscriberID string `gorm:"type:char(36);not null;index"`

	Subscriber Subscriber `gorm:"foreignKey:SubscriberID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SubscriptionToken.
func (SubscriptionToken) TableName() string { return "subscription_tokens" }

// User is an admin allowed to publish issues. PasswordHash holds an argon2
// PHC string.
type User struct {
	ID           string `gorm:"type:char(36);primaryKey"`
	Username     string `gorm:"type:varchar(255);not null;uniqueIndex:ux_users_username"`
	PasswordHash string `gorm:"type:text;not null"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ConfirmedSubscriber is the projection the publish flow iterates over.
type ConfirmedSubscriber struct {
	Email string
}
