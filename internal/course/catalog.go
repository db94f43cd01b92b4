package course

import (
	"context"
	"fmt"
	"sort"

	"academy/internal/domain"
	"academy/internal/rowstore"
)

// DefaultCatalog is the built-in course list.
func DefaultCatalog() []domain.Course {
	return []domain.Course{
		{
			ID:          "ai-content-basics",
			Title:       "AI 콘텐츠 제작 입문",
			Description: "생성형 AI로 영상 기획부터 이미지와 내레이션까지 만드는 기초 과정",
			Lessons: []domain.Lesson{
				{ID: "intro", Title: "생성형 AI 이해하기", Order: 1, Minutes: 12},
				{ID: "prompting", Title: "프롬프트 작성법", Order: 2, Minutes: 18},
				{ID: "storyboard", Title: "장면 대본과 스토리보드", Order: 3, Minutes: 20},
				{ID: "voice", Title: "AI 내레이션 만들기", Order: 4, Minutes: 15},
			},
		},
		{
			ID:          "youtube-growth",
			Title:       "유튜브 트렌드 분석과 채널 성장",
			Description: "검색 트렌드와 인기 영상을 분석해 주제를 고르는 방법",
			Lessons: []domain.Lesson{
				{ID: "keywords", Title: "키워드 조사", Order: 1, Minutes: 14},
				{ID: "benchmark", Title: "인기 영상 벤치마킹", Order: 2, Minutes: 16},
				{ID: "planning", Title: "콘텐츠 캘린더 만들기", Order: 3, Minutes: 10},
			},
		},
	}
}

// Courses returns the catalog ordered as configured.
func (s *Service) Courses() []domain.Course {
	out := make([]domain.Course, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// Course returns one catalog entry, lessons sorted by order.
func (s *Service) Course(courseID string) (domain.Course, error) {
	for _, c := range s.catalog {
		if c.ID == courseID {
			lessons := append([]domain.Lesson(nil), c.Lessons...)
			sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })
			c.Lessons = lessons
			return c, nil
		}
	}
	return domain.Course{}, fmt.Errorf("course: %s: %w", courseID, domain.ErrNotFound)
}

// Enroll marks the learner as enrolled. Repeated calls are no-ops.
func (s *Service) Enroll(ctx context.Context, userID, courseID string) (domain.Progress, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return domain.Progress{}, err
	}
	p, err := s.loadProgress(ctx, userID, c)
	if err != nil {
		return domain.Progress{}, err
	}
	if p.Enrolled {
		return p, nil
	}
	p.Enrolled = true
	return s.saveProgress(ctx, userID, c, p)
}

// MarkLessonComplete records a finished lesson, enrolling implicitly.
func (s *Service) MarkLessonComplete(ctx context.Context, userID, courseID, lessonID string) (domain.Progress, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return domain.Progress{}, err
	}
	if _, ok := c.Lesson(lessonID); !ok {
		return domain.Progress{}, fmt.Errorf("course: lesson %s/%s: %w", courseID, lessonID, domain.ErrNotFound)
	}
	p, err := s.loadProgress(ctx, userID, c)
	if err != nil {
		return domain.Progress{}, err
	}
	p.Enrolled = true
	for _, done := range p.CompletedLessons {
		if done == lessonID {
			return s.saveProgress(ctx, userID, c, p)
		}
	}
	p.CompletedLessons = append(p.CompletedLessons, lessonID)
	return s.saveProgress(ctx, userID, c, p)
}

// Progress reports completion for one course. Learners who never enrolled
// get an empty, unenrolled result.
func (s *Service) Progress(ctx context.Context, userID, courseID string) (domain.Progress, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return domain.Progress{}, err
	}
	return s.loadProgress(ctx, userID, c)
}

func (s *Service) loadProgress(ctx context.Context, userID string, c domain.Course) (domain.Progress, error) {
	p := domain.Progress{CourseID: c.ID, CompletedLessons: []string{}}
	e, err := s.store.Get(ctx, tableProgress, userID, c.ID)
	if err != nil {
		if isNotFound(err) {
			return p, nil
		}
		return domain.Progress{}, fmt.Errorf("course: load progress: %w", err)
	}
	p.Enrolled = e.Int("enrolled") == 1
	for _, id := range e.Strings("completed") {
		// lessons removed from the catalog no longer count
		if _, ok := c.Lesson(id); ok {
			p.CompletedLessons = append(p.CompletedLessons, id)
		}
	}
	p.Percent = percent(len(p.CompletedLessons), len(c.Lessons))
	p.UpdatedAt = e.UpdatedAt
	return p, nil
}

func (s *Service) saveProgress(ctx context.Context, userID string, c domain.Course, p domain.Progress) (domain.Progress, error) {
	enrolled := 0
	if p.Enrolled {
		enrolled = 1
	}
	e, err := s.store.Upsert(ctx, tableProgress, rowstore.Entity{
		PartitionKey: userID,
		RowKey:       c.ID,
		Properties: map[string]any{
			"enrolled":  enrolled,
			"completed": p.CompletedLessons,
		},
	})
	if err != nil {
		return domain.Progress{}, fmt.Errorf("course: save progress: %w", err)
	}
	p.Percent = percent(len(p.CompletedLessons), len(c.Lessons))
	p.UpdatedAt = e.UpdatedAt
	return p, nil
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * 100 / total
}
