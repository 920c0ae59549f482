package prompt

import (
	"strings"
)

// DefaultImageQuestion подпись реплики, если пользователь отправил картинку без вопроса.
const DefaultImageQuestion = "Solve the problem from the image"

// NativeImageQuestion текст запроса для моделей, принимающих картинку напрямую.
const NativeImageQuestion = "Please analyze this screenshot and help me with the content shown in the image."

// Problem данные для промпта решения задачи по распознанному изображению.
type Problem struct {
	Extracted           string // Результат пайплайна распознавания
	Question            string // Вопрос пользователя, может быть пустым
	ProgrammingLanguage string
	ResponseLanguage    string
}

// BuildProblem собирает промпт решения задачи: распознанный текст, вопрос пользователя,
// формат ответа и языковые ограничения, в этом порядке.
func BuildProblem(p Problem) string {
	pl := strings.TrimSpace(p.ProgrammingLanguage)
	if pl == "" {
		pl = "JavaScript"
	}
	rl := strings.TrimSpace(p.ResponseLanguage)
	if rl == "" {
		rl = "English"
	}

	var b strings.Builder
	b.WriteString("SOLVE THE PROBLEM.\n\n")
	b.WriteString("THE SOURCE IMAGE CONTAINS:\n")
	b.WriteString(p.Extracted)
	b.WriteString("\n\n")
	if q := strings.TrimSpace(p.Question); q != "" {
		b.WriteString("ADDITIONAL QUESTION: ")
		b.WriteString(q)
		b.WriteString("\n\n")
	}
	b.WriteString("FOLLOW THIS ANSWER FORMAT:\n")
	b.WriteString("1. Name of the algorithm or approach\n")
	b.WriteString("2. The main idea of the solution and its complexity (O() time and memory)\n")
	b.WriteString("3. The solution in " + pl + "\n")
	b.WriteString("4. Comments on the key parts: conditions, loops, important operations\n\n")
	b.WriteString("IMPORTANT:\n")
	b.WriteString("- Answer in " + rl + "\n")
	b.WriteString("- Use only " + pl + ", do not use other programming languages\n")
	b.WriteString("- Be as precise as possible about the problem statement")
	return b.String()
}
