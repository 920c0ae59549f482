package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var embeddedProfiles []byte

// FallbackProfile используется, когда запрошенный профиль неизвестен.
const FallbackProfile = "interview"

// ErrInvalidTemplate возвращается, если шаблон профиля неполный.
var ErrInvalidTemplate = errors.New("invalid profile template")

// Template набор секций системного промпта одного профиля.
type Template struct {
	Intro              string `yaml:"intro"`
	FormatRequirements string `yaml:"format_requirements"`
	SearchUsage        string `yaml:"search_usage"`
	Content            string `yaml:"content"`
	OutputInstructions string `yaml:"output_instructions"`
}

// Spec входные данные для сборки системного промпта.
type Spec struct {
	Profile            string
	CustomInstructions string
	SearchToolEnabled  bool
}

type catalog struct {
	Default  string              `yaml:"default"`
	Aliases  map[string]string   `yaml:"aliases"`
	Profiles map[string]Template `yaml:"profiles"`
}

// Assembler собирает системный промпт из шаблонов профилей. Потокобезопасен, не меняется после загрузки.
type Assembler struct {
	profiles map[string]Template
	aliases  map[string]string
	fallback string
}

// Load разбирает YAML-каталог профилей и проверяет, что у каждого профиля заполнены все секции.
func Load(data []byte) (*Assembler, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(c.Profiles) == 0 {
		return nil, fmt.Errorf("%w: no profiles defined", ErrInvalidTemplate)
	}
	for name, t := range c.Profiles {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
	}
	fallback := c.Default
	if fallback == "" {
		fallback = FallbackProfile
	}
	if _, ok := c.Profiles[fallback]; !ok {
		return nil, fmt.Errorf("%w: default profile %q is not defined", ErrInvalidTemplate, fallback)
	}
	for alias, target := range c.Aliases {
		if _, ok := c.Profiles[target]; !ok {
			return nil, fmt.Errorf("%w: alias %q points to unknown profile %q", ErrInvalidTemplate, alias, target)
		}
	}
	return &Assembler{profiles: c.Profiles, aliases: c.Aliases, fallback: fallback}, nil
}

func (t Template) validate() error {
	sections := []struct {
		name, value string
	}{
		{"intro", t.Intro},
		{"format_requirements", t.FormatRequirements},
		{"search_usage", t.SearchUsage},
		{"content", t.Content},
		{"output_instructions", t.OutputInstructions},
	}
	for _, s := range sections {
		if strings.TrimSpace(s.value) == "" {
			return fmt.Errorf("%w: section %s is empty", ErrInvalidTemplate, s.name)
		}
	}
	return nil
}

var (
	defaultOnce      sync.Once
	defaultAssembler *Assembler
	defaultErr       error
)

// Default возвращает сборщик на встроенных шаблонах.
func Default() (*Assembler, error) {
	defaultOnce.Do(func() {
		defaultAssembler, defaultErr = Load(embeddedProfiles)
	})
	return defaultAssembler, defaultErr
}

// MustDefault как Default, но паникует при ошибке в шаблонах. Для main.
func MustDefault() *Assembler {
	a, err := Default()
	if err != nil {
		panic(err)
	}
	return a
}

// Resolve возвращает каноническое имя профиля с учётом алиасов; неизвестный профиль — fallback.
func (a *Assembler) Resolve(profile string) string {
	p := strings.ToLower(strings.TrimSpace(profile))
	if target, ok := a.aliases[p]; ok {
		p = target
	}
	if _, ok := a.profiles[p]; ok {
		return p
	}
	return a.fallback
}

// Build собирает системный промпт. Порядок секций фиксирован:
// intro, format, (search), content, пользовательский контекст, output.
func (a *Assembler) Build(spec Spec) string {
	t := a.profiles[a.Resolve(spec.Profile)]

	var b strings.Builder
	b.WriteString(t.Intro)
	b.WriteString("\n\n")
	b.WriteString(t.FormatRequirements)
	if spec.SearchToolEnabled {
		b.WriteString("\n\n")
		b.WriteString(t.SearchUsage)
	}
	b.WriteString("\n\n")
	b.WriteString(t.Content)
	b.WriteString("\n\nUser-provided context\n-----\n")
	b.WriteString(spec.CustomInstructions)
	b.WriteString("\n-----\n\n")
	b.WriteString(t.OutputInstructions)
	return b.String()
}

// Profiles возвращает отсортированный список известных профилей (без алиасов).
func (a *Assembler) Profiles() []string {
	names := make([]string, 0, len(a.profiles))
	for name := range a.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithLanguageSettings дописывает к пользовательскому контексту блок с языками ответа и программирования.
func WithLanguageSettings(custom, programmingLanguage, responseLanguage string) string {
	var extra []string
	if pl := strings.TrimSpace(programmingLanguage); pl != "" {
		extra = append(extra, "Programming language: "+pl)
	}
	if rl := strings.TrimSpace(responseLanguage); rl != "" {
		extra = append(extra, "Response language: "+rl)
	}
	if len(extra) == 0 {
		return custom
	}
	section := "**Additional Settings:**\n" + strings.Join(extra, "\n")
	if custom == "" {
		return section
	}
	return custom + "\n\n" + section
}
