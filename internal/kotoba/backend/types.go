package backend

import "time"

// User is a backend user account as returned by the auth and search endpoints.
type User struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Image       string    `json:"image,omitempty"`
	IsFollowing bool      `json:"isFollowing,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	Profile     *Profile  `json:"profile,omitempty"`
}

// Profile is the optional self-introduction attached to a user.
type Profile struct {
	ID               int64  `json:"id"`
	UserID           int64  `json:"userId"`
	SelfIntroduction string `json:"selfIntroduction"`
}

// Post is one timeline entry.
type Post struct {
	ID           int64     `json:"id"`
	Content      string    `json:"content"`
	User         *User     `json:"user,omitempty"`
	ReplyToID    *int64    `json:"replyToId,omitempty"`
	RepliesCount int       `json:"repliesCount,omitempty"`
	Replies      []Post    `json:"replies,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
}

// NotifiableType says what kind of interaction produced a notice.
type NotifiableType string

const (
	NotifiableLike   NotifiableType = "Like"
	NotifiableRepost NotifiableType = "Repost"
	NotifiableReply  NotifiableType = "Reply"
	NotifiableFollow NotifiableType = "Follow"
)

// NoticePost is the post a notice refers to, when there is one.
type NoticePost struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// Notice is one entry of the signed-in user's notification list.
type Notice struct {
	ID             int64          `json:"id"`
	User           User           `json:"user"`
	Post           *NoticePost    `json:"post,omitempty"`
	NotifiableType NotifiableType `json:"notifiableType"`
	NotifiableID   int64          `json:"notifiableId"`
	CreatedAt      time.Time      `json:"createdAt,omitzero"`
}

// AuthResponse is returned by signup and signin.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// SignupParams are the fields required to register a new account.
type SignupParams struct {
	Name     string
	Email    string
	Password string
}
