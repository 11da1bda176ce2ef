package models

import "time"

// FollowEdge is one side of a directed follow relationship. The same shape
// is written under the target's followers subcollection (keyed by the
// follower's id) and mirrored under the follower's following subcollection
// (keyed by the target's id). Both sides are written in one atomic batch so
// the edge exists in both places or neither.
type FollowEdge struct {
	// FollowedBy is the follower's id, redundant with the document key on
	// the followers side for query convenience.
	FollowedBy string    `json:"followedBy" bson:"followedBy"`
	FollowedAt time.Time `json:"followedAt" bson:"followedAt"`
}
