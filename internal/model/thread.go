package model

import "time"

const DefaultThreadSubject = "Conversation"

// Actor — аутентифицированный пользователь, от имени которого выполняется операция.
type Actor struct {
	UserID string
	Role   string
}

const RoleTeacher = "teacher"

type Participant struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Thread — переписка. Состав участников фиксируется при создании.
type Thread struct {
	ID            string        `json:"id"`
	Subject       string        `json:"subject"`
	LastMessageAt time.Time     `json:"last_message_at"`
	Participants  []Participant `json:"-"`
}

// HasParticipant сообщает, входит ли userID в тред.
func (t *Thread) HasParticipant(userID string) bool {
	for _, p := range t.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

type ThreadHeader struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// ThreadSummary — элемент списка тредов; Archived относится к запрашивающему пользователю.
type ThreadSummary struct {
	ThreadHeader
	Archived bool `json:"archived"`
}

type ThreadDetail struct {
	Thread       ThreadHeader  `json:"thread"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
}
