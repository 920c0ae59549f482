package ai

import "context"

// StubDescriber заглушка, которая не делает реальных запросов. Используется без vision-бэкенда.
type StubDescriber struct {
	Text string
	Err  error
}

func NewStubDescriber(text string) *StubDescriber { return &StubDescriber{Text: text} }

func (c *StubDescriber) Describe(_ context.Context, _ string, _ []byte) (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	return c.Text, nil
}
