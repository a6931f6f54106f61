package models

import "time"

type QASource struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Score      int    `json:"score"`
	Snippet    string `json:"snippet"`
}

type QAHistory struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Sources   []QASource `json:"sources"`
	CreatedAt time.Time  `json:"createdAt"`
}
