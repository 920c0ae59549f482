package ai

import "context"

// Describer описывает картинку по текстовой инструкции. Все реализации должны быть взаимозаменяемыми.
type Describer interface {
	Describe(ctx context.Context, instruction string, image []byte) (string, error)
}
