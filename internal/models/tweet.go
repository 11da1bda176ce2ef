package models

import "time"

// Reply policy values for Tweet.AllowRepliesFrom.
const (
	RepliesEverybody = "everybody"
	RepliesNobody    = "nobody"
	RepliesFollowing = "following"
	RepliesFollowers = "followers"
)

// Tweet is the content record stored in the tweets collection. The five
// *Count fields are derived aggregates over the matching subcollections.
// ParentTweetID may reference a tweet that no longer exists; consumers must
// treat a missing parent as unavailable, never as an error.
type Tweet struct {
	ID               string    `json:"id" bson:"_id"`
	AuthorID         string    `json:"authorId" bson:"authorId"`
	Text             string    `json:"text" bson:"text"`
	Images           []string  `json:"images,omitempty" bson:"images,omitempty"`
	ParentTweetID    string    `json:"parentTweetId,omitempty" bson:"parentTweetId,omitempty"`
	IsQuoteTweet     bool      `json:"isQuoteTweet" bson:"isQuoteTweet"`
	Timestamp        time.Time `json:"timestamp" bson:"timestamp"`
	LikesCount       int64     `json:"likesCount" bson:"likesCount"`
	RetweetsCount    int64     `json:"retweetsCount" bson:"retweetsCount"`
	RepliesCount     int64     `json:"repliesCount" bson:"repliesCount"`
	BookmarksCount   int64     `json:"bookmarksCount" bson:"bookmarksCount"`
	QuotesCount      int64     `json:"quotesCount" bson:"quotesCount"`
	AllowQuotes      bool      `json:"allowQuotes" bson:"allowQuotes"`
	AllowRepliesFrom []string  `json:"allowRepliesFrom,omitempty" bson:"allowRepliesFrom,omitempty"`
	HideReplies      bool      `json:"hideReplies" bson:"hideReplies"`
	// Append-only, populated on edit, never pruned.
	VersionHistory []TweetVersion `json:"versionHistory,omitempty" bson:"versionHistory,omitempty"`
}

// IsReply reports whether the tweet is a reply (has a parent and is not a quote).
func (t *Tweet) IsReply() bool {
	return t.ParentTweetID != "" && !t.IsQuoteTweet
}

// IsQuote reports whether the tweet quotes another tweet.
func (t *Tweet) IsQuote() bool {
	return t.ParentTweetID != "" && t.IsQuoteTweet
}

// TweetVersion is a pre-edit content snapshot kept in VersionHistory.
type TweetVersion struct {
	Text     string    `json:"text" bson:"text"`
	Images   []string  `json:"images,omitempty" bson:"images,omitempty"`
	EditedAt time.Time `json:"editedAt" bson:"editedAt"`
}

type CreateTweetRequest struct {
	Text             string   `json:"text" validate:"required,min=1,max=280"`
	Images           []string `json:"images,omitempty" validate:"omitempty,dive,url"`
	ParentTweetID    string   `json:"parentTweetId,omitempty"`
	IsQuoteTweet     bool     `json:"isQuoteTweet"`
	AllowQuotes      *bool    `json:"allowQuotes,omitempty"`
	AllowRepliesFrom []string `json:"allowRepliesFrom,omitempty" validate:"omitempty,dive,oneof=everybody nobody following followers"`
	HideReplies      bool     `json:"hideReplies"`
}

type EditTweetRequest struct {
	Text   string   `json:"text" validate:"required,min=1,max=280"`
	Images []string `json:"images,omitempty" validate:"omitempty,dive,url"`
}
