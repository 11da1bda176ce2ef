package models

import "time"

// EngagementEdge is a directed like/retweet/bookmark edge between a user
// and a tweet, denormalized the same way as FollowEdge: one entry under the
// tweet's subcollection keyed by the actor's id, one mirror under the
// actor's subcollection keyed by the tweet's id.
type EngagementEdge struct {
	ActorID   string    `json:"actorId" bson:"actorId"`
	TweetID   string    `json:"tweetId" bson:"tweetId"`
	EngagedAt time.Time `json:"engagedAt" bson:"engagedAt"`
}

// ReplyEdge is the mirrored entry kept under a parent tweet's replies (or
// quotes) subcollection for cheap counting. It is removed when the child
// tweet is deleted.
type ReplyEdge struct {
	TweetID   string    `json:"tweetId" bson:"tweetId"`
	AuthorID  string    `json:"authorId" bson:"authorId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
