package domain

import "time"

// Course is a catalog entry with an ordered lesson list.
type Course struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Lessons     []Lesson `json:"lessons"`
}

// Lesson belongs to exactly one course.
type Lesson struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Order   int    `json:"order"`
	Minutes int    `json:"minutes"`
}

// Lesson returns the lesson with the given id.
func (c Course) Lesson(id string) (Lesson, bool) {
	for _, l := range c.Lessons {
		if l.ID == id {
			return l, true
		}
	}
	return Lesson{}, false
}

// Progress summarizes a learner's completion state within a course.
type Progress struct {
	CourseID         string    `json:"course_id"`
	Enrolled         bool      `json:"enrolled"`
	CompletedLessons []string  `json:"completed_lessons"`
	Percent          int       `json:"percent"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// Post is a discussion thread entry attached to a course.
type Post struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	Comments   []Comment `json:"comments"`
	CreatedAt  time.Time `json:"created_at"`
}

// Comment is a reply to a post.
type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}
