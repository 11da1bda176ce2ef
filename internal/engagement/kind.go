package engagement

import "github.com/curlos/twitter-2.0-sub000/internal/store"

// Kind identifies one engagement relationship. Every kind follows the same
// paired write pattern: an edge under the target keyed by the actor's id, a
// mirrored edge under the actor keyed by the target's id, and a counter
// delta on the target, all in one atomic batch.
type Kind int

const (
	Like Kind = iota
	Retweet
	Bookmark
	Follow
)

func (k Kind) String() string {
	switch k {
	case Like:
		return "like"
	case Retweet:
		return "retweet"
	case Bookmark:
		return "bookmark"
	case Follow:
		return "follow"
	}
	return "unknown"
}

// ParseKind resolves a kind name; ok is false for unknown names.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "like":
		return Like, true
	case "retweet":
		return Retweet, true
	case "bookmark":
		return Bookmark, true
	case "follow":
		return Follow, true
	}
	return 0, false
}

type kindSpec struct {
	targetCollection string
	edgeSub          string
	mirrorSub        string
	counterField     string
}

var kindSpecs = map[Kind]kindSpec{
	Like:     {store.Tweets, store.SubLikes, store.SubLikes, "likesCount"},
	Retweet:  {store.Tweets, store.SubRetweets, store.SubRetweets, "retweetsCount"},
	Bookmark: {store.Tweets, store.SubBookmarks, store.SubBookmarks, "bookmarksCount"},
	Follow:   {store.Users, store.SubFollowers, store.SubFollowing, "followersCount"},
}

// edgePath is the relationship document under the target, keyed by actor.
func (k Kind) edgePath(targetID, actorID string) string {
	sp := kindSpecs[k]
	return store.SubDoc(sp.targetCollection, targetID, sp.edgeSub, actorID)
}

// mirrorPath is the mirrored relationship document under the actor, keyed
// by target.
func (k Kind) mirrorPath(targetID, actorID string) string {
	sp := kindSpecs[k]
	return store.SubDoc(store.Users, actorID, sp.mirrorSub, targetID)
}

func (k Kind) targetPath(targetID string) string {
	return store.DocPath(kindSpecs[k].targetCollection, targetID)
}
