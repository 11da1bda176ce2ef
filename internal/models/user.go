package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is the identity record stored in the users collection. The
// followersCount/followingCount fields are derived aggregates: they must
// equal the cardinality of the followers/following subcollections and can
// drift, which the reconcile jobs repair.
type User struct {
	ID             string    `json:"id" bson:"_id"`
	DisplayName    string    `json:"displayName" bson:"displayName"`
	Handle         string    `json:"handle" bson:"handle"`
	Email          string    `json:"email,omitempty" bson:"email,omitempty"`
	Bio            string    `json:"bio,omitempty" bson:"bio,omitempty"`
	Location       string    `json:"location,omitempty" bson:"location,omitempty"`
	Website        string    `json:"website,omitempty" bson:"website,omitempty"`
	AvatarURL      string    `json:"avatarURL,omitempty" bson:"avatarURL,omitempty"`
	BannerURL      string    `json:"bannerURL,omitempty" bson:"bannerURL,omitempty"`
	DateJoined     time.Time `json:"dateJoined" bson:"dateJoined"`
	FollowersCount int64     `json:"followersCount" bson:"followersCount"`
	FollowingCount int64     `json:"followingCount" bson:"followingCount"`
	// Absent for federated-identity accounts.
	PasswordHash string `json:"-" bson:"passwordHash,omitempty"`
}

type RegisterRequest struct {
	DisplayName string `json:"displayName" validate:"required,min=1,max=50"`
	Handle      string `json:"handle" validate:"required,min=2,max=30,alphanum"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Handle   string `json:"handle" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest carries a partial profile edit. The pointer fields
// distinguish "leave unchanged" (nil) from "clear" (pointer to empty
// string); DisplayName and Handle cannot be cleared, only replaced.
type UpdateProfileRequest struct {
	DisplayName string  `json:"displayName,omitempty" validate:"omitempty,min=1,max=50"`
	Handle      string  `json:"handle,omitempty" validate:"omitempty,min=2,max=30,alphanum"`
	Bio         *string `json:"bio,omitempty" validate:"omitempty,max=160"`
	Location    *string `json:"location,omitempty" validate:"omitempty,max=30"`
	Website     *string `json:"website,omitempty" validate:"omitempty,url"`
	AvatarURL   *string `json:"avatarURL,omitempty" validate:"omitempty,url"`
	BannerURL   *string `json:"bannerURL,omitempty" validate:"omitempty,url"`
}

// HandleClaim reserves a handle in the handles collection. Uniqueness is
// enforced by a pre-write existence check plus a batch precondition, not by
// a database constraint.
type HandleClaim struct {
	UserID    string    `json:"userId" bson:"userId"`
	ClaimedAt time.Time `json:"claimedAt" bson:"claimedAt"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
	jwt.RegisteredClaims
}
