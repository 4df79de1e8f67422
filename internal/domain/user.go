package domain

// UserInfo is the display subset of a user record joined onto leaderboard rows
type UserInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
