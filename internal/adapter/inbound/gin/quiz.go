package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/server/internal/port/inbound"
	"github.com/quizforge/server/internal/utils/middleware"
)

// quizAdapter implements inbound.QuizHttpPort.
type quizAdapter struct {
	quiz inbound.QuizDomain
}

// NewQuizAdapter creates a new quiz HTTP adapter.
func NewQuizAdapter(quiz inbound.QuizDomain) inbound.QuizHttpPort {
	return &quizAdapter{quiz: quiz}
}

// RegisterRoutes registers quiz routes on an authenticated group.
func (a *quizAdapter) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/quiz/generate", a.Generate)
}

type generateQuizRequest struct {
	Text string `json:"text"`
}

func (a *quizAdapter) Generate(c *gin.Context) {
	var req generateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	quiz, err := a.quiz.Generate(c.Request.Context(), middleware.GetAccountID(c), req.Text)
	if err != nil {
		handleError(c, err)
		return
	}

	status := http.StatusOK
	if quiz.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, quiz)
}
