package dto

type CreatePostRequest struct {
	Images  []string `json:"images" binding:"required,min=1,dive,required"`
	Caption string   `json:"caption"`
}

type CreatePostResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	Images        int    `json:"images"`
	QueuePosition int    `json:"queue_position"`
}

type ListPostsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListPostsResponse struct {
	Posts      []PostDTO `json:"posts"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type PostDTO struct {
	JobID        string   `json:"job_id"`
	Images       []string `json:"images"`
	Caption      string   `json:"caption"`
	Status       string   `json:"status"`
	QueueRetries int      `json:"queue_retries"`
	Attempts     int      `json:"attempts"`
	ExternalRef  string   `json:"external_ref,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
	PublishedAt  string   `json:"published_at,omitempty"`
}

type QueueStatusResponse struct {
	Length           int    `json:"length"`
	Processing       bool   `json:"processing"`
	NextEligibleTime string `json:"next_eligible_time,omitempty"`
}

type DrainResponse struct {
	Drained int `json:"drained"`
}
