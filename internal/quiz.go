package internal

import (
	"sync"

	"github.com/koopa0/system-design/14-quiz-room/pkg/errors"
)

// 題庫是外部協作者：本核心只透過 QuizService 介面取用內容，
// 題庫的儲存、上傳與驗證不在此模組範圍內。

// Question 題目
type Question struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	Answer  string `json:"answer"`
}

// Quiz 題庫
type Quiz struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions,omitempty"`
}

// QuizMin 最小題庫描述（創房時的預設題庫）
type QuizMin struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// QuizService 題庫內容提供者
type QuizService interface {
	// MinQuiz 取得最小可用題庫描述
	MinQuiz() (QuizMin, error)
	// QuizByID 取得題庫（不含題目）
	QuizByID(id int64) (*Quiz, error)
	// QuizWithQuestions 取得題庫（含題目，重連回放用）
	QuizWithQuestions(id int64) (*Quiz, error)
	// QuestionCount 題目數量
	QuestionCount(id int64) (int, error)
}

// StaticQuizService 以固定資料實作 QuizService，供單實例部署與測試使用
type StaticQuizService struct {
	mu      sync.RWMutex
	quizzes map[int64]*Quiz
	minID   int64
}

// NewStaticQuizService 創建固定題庫服務
func NewStaticQuizService(quizzes []*Quiz) *StaticQuizService {
	s := &StaticQuizService{
		quizzes: make(map[int64]*Quiz),
	}
	for _, q := range quizzes {
		s.quizzes[q.ID] = q
		if s.minID == 0 || q.ID < s.minID {
			s.minID = q.ID
		}
	}
	return s
}

// MinQuiz 取得最小可用題庫描述
func (s *StaticQuizService) MinQuiz() (QuizMin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quiz, ok := s.quizzes[s.minID]
	if !ok {
		return QuizMin{}, errors.ErrQuizNotFound
	}
	return QuizMin{ID: quiz.ID, Title: quiz.Title}, nil
}

// QuizByID 取得題庫（不含題目）
func (s *StaticQuizService) QuizByID(id int64) (*Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quiz, ok := s.quizzes[id]
	if !ok {
		return nil, errors.ErrQuizNotFound
	}
	return &Quiz{ID: quiz.ID, Title: quiz.Title}, nil
}

// QuizWithQuestions 取得題庫（含題目）
func (s *StaticQuizService) QuizWithQuestions(id int64) (*Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quiz, ok := s.quizzes[id]
	if !ok {
		return nil, errors.ErrQuizNotFound
	}
	questions := make([]Question, len(quiz.Questions))
	copy(questions, quiz.Questions)
	return &Quiz{ID: quiz.ID, Title: quiz.Title, Questions: questions}, nil
}

// QuestionCount 題目數量
func (s *StaticQuizService) QuestionCount(id int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quiz, ok := s.quizzes[id]
	if !ok {
		return 0, errors.ErrQuizNotFound
	}
	return len(quiz.Questions), nil
}

// DefaultQuizzes 內建範例題庫（服務啟動時的預設內容）
func DefaultQuizzes() []*Quiz {
	return []*Quiz{
		{
			ID:    1,
			Title: "常識快問快答",
			Questions: []Question{
				{ID: 1, Content: "世界上最高的山是？", Answer: "聖母峰"},
				{ID: 2, Content: "水的化學式是？", Answer: "H2O"},
				{ID: 3, Content: "一年有幾個月？", Answer: "12"},
			},
		},
		{
			ID:    2,
			Title: "程式設計入門",
			Questions: []Question{
				{ID: 4, Content: "Go 的併發原語叫什麼？", Answer: "goroutine"},
				{ID: 5, Content: "HTTP 狀態碼 404 代表？", Answer: "Not Found"},
			},
		},
	}
}
